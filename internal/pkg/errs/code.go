package errs

const (
	BizCodeInvalidParams        = 1000
	BizCodeInvalidConfiguration = 1001

	BizCodeVersionCheckFailed  = 2001
	BizCodeManifestFetchFailed = 2002

	BizCodeDownloadFailed     = 3001
	BizCodeNoUpdateAvailable  = 3002
	BizCodeAlreadyDownloading = 3003
	BizCodeCancelled          = 3004

	BizCodeApplyFailed    = 4001
	BizCodeRollbackFailed = 4002
)
