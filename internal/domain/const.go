package domain

const (
	// Gateway constants
	DEFAULT_IPFS_GATEWAY = "https://gateway.pinata.cloud"

	// Revenue split: contributors earn 70% of every purchase, the platform
	// operator keeps the remainder. The on-chain contract enforces the same
	// ratio atomically with the asset transfer; the values computed here are
	// for local mode and display.
	CONTRIBUTOR_SHARE_PERCENT = 70

	// Sentinel quality score for content stored without validation.
	QUALITY_SCORE_UNSCORED = -1
)
