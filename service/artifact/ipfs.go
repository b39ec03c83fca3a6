package artifact

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
)

// ShellUploader pins content through an IPFS node's HTTP API.
type ShellUploader struct {
	sh *shell.Shell
}

// NewShellUploader connects to the IPFS API at apiURL (host:port or URL).
func NewShellUploader(apiURL string, timeout time.Duration) *ShellUploader {
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			DisableKeepAlives: true,
		},
	}
	return &ShellUploader{sh: shell.NewShellWithClient(apiURL, client)}
}

type addResult struct {
	cid string
	err error
}

// Add uploads content and returns its CID. The shell API has no context
// parameter, so a cancelled ctx abandons the upload rather than aborting it;
// the HTTP client timeout bounds the abandoned request.
func (u *ShellUploader) Add(ctx context.Context, content []byte) (string, error) {
	done := make(chan addResult, 1)
	go func() {
		cid, err := u.sh.Add(bytes.NewReader(content), shell.Pin(true))
		done <- addResult{cid: cid, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("ipfs add: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("ipfs add: %w", res.err)
		}
		return res.cid, nil
	}
}
