package net

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// GetYAML retrieves the HTTP content and decodes it into the passed target. JSON content decodes as well.
func GetYAML[T any](ctx context.Context, c *http.Client, url string, target *T) error {
	resp, err := getResp(ctx, c, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := yaml.NewDecoder(resp.Body).Decode(target); err != nil {
		return errors.Wrap(err, "error decoding content")
	}
	return nil
}
