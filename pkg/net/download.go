package net

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"
)

var ErrorURLNotFound = errors.New("URL not found")

func getResp(ctx context.Context, c *http.Client, url string) (*http.Response, error) {
	if c == nil {
		return nil, errors.New("HTTP client required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "error creating HTTP Get request")
	}

	req.Header.Set("User-Agent", clientAgent)

	resp, err := c.Do(req) //nolint:gosec // URL comes from the configured registry
	if err != nil {
		return nil, errors.Wrapf(err, "error requesting %s", url)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, errors.Wrap(ErrorURLNotFound, url)
	}

	if resp.StatusCode != http.StatusOK {
		PrintHTTPResponse(resp)
		resp.Body.Close()
		return nil, fmt.Errorf("error downloading file (status: %d - %s): %s", resp.StatusCode, resp.Status, url)
	}

	return resp, nil
}

// Download saves the content of url to path. A partially written file is removed on error.
func Download(ctx context.Context, c *http.Client, url, path string) (retErr error) {
	resp, err := getResp(ctx, c, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "error creating file: %s", path)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
		if retErr != nil {
			os.Remove(path)
		}
	}()

	if _, err = io.Copy(out, resp.Body); err != nil {
		return errors.Wrap(err, "error saving downloaded content to file")
	}

	return nil
}
