package dto

type InstallHooksOutput struct {
	Written []string
}
