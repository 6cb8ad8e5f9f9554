package model

type ConfigureRequest struct {
	BaseURL            string `json:"baseUrl" validate:"required,url"`
	Hostname           string `json:"hostname" validate:"required,hostname"`
	ApplicationPath    string `json:"applicationPath" validate:"required"`
	CurrentVersionHint string `json:"currentVersionHint" validate:"vertoken"`
}

type SetBlockingRequest struct {
	Enabled bool `json:"enabled"`
}
