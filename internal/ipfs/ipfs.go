// Package ipfs pins plan content to IPFS through a pinning service and
// retrieves it back through a public gateway.
package ipfs

import "context"

// Client defines pinning service operations
//
//go:generate mockgen -source=ipfs.go -destination=../mocks/ipfs.go -package=mocks -mock_names=Client=MockIPFSClient
type Client interface {
	// Pin uploads plan content and returns its CID
	Pin(ctx context.Context, content string) (string, error)
	// Get retrieves pinned plan content by CID
	Get(ctx context.Context, cid string) (string, error)
	// Unpin removes a pin; unpinning an unknown CID is not an error
	Unpin(ctx context.Context, cid string) error
	// IsPinned reports whether a CID is currently pinned
	IsPinned(ctx context.Context, cid string) (bool, error)
}
