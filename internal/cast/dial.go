package cast

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"karaoke-service/internal/resolver"
)

// dialController talks DIAL to one device: POST to the YouTube application
// endpoint launches playback of a video id, DELETE stops the running app.
type dialController struct {
	base string
	http *http.Client
}

func newDialController(d Device) controller {
	return &dialController{
		base: fmt.Sprintf("http://%s:%d/apps/YouTube", d.Host, d.Port),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *dialController) Play(ctx context.Context, v resolver.Video) error {
	body := strings.NewReader("v=" + url.QueryEscape(v.ID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("device returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *dialController) Stop(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/run", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 404 means the app already exited, which is as stopped as it gets.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("device returned status %d", resp.StatusCode)
	}
	return nil
}
