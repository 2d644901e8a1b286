package config

type EnvVars struct {
	appName string
	env     string
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	if e.appName == "" {
		return "Auth Session"
	}
	return e.appName
}

func (e EnvVars) GetEnv() string {
	if e.env == "" {
		return "DEV"
	}
	return e.env
}
