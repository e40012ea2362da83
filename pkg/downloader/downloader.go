// Package downloader fetches remote archives over HTTP for the file
// share upload flow.
package downloader

import (
	"context"

	"github.com/cavaliercoder/grab"
	"github.com/screenport/agent/pkg/logger"
	"github.com/screenport/agent/pkg/monitoring"
)

type Downloader struct {
	client *grab.Client
	log    *logger.Logger
}

func New(log *logger.Logger) Downloader {
	return Downloader{client: grab.NewClient(), log: log}
}

// Fetch downloads url into the dest directory and returns the path of
// the saved file. The server's file name is honored when it sends one.
func (d Downloader) Fetch(ctx context.Context, url string, dest string) (string, error) {
	req, err := grab.NewRequest(dest, url)
	if err != nil {
		return "", err
	}
	req = req.WithContext(ctx)

	resp := d.client.Do(req)
	d.log.Debug().Msgf("downloading %v", req.URL())
	if err = resp.Err(); err != nil {
		return "", err
	}
	monitoring.TransferBytes.WithLabelValues("in").Add(float64(resp.BytesComplete()))
	d.log.Info().Msgf("downloaded [%v] %s", resp.HTTPResponse.Status, resp.Filename)
	return resp.Filename, nil
}
