package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Billy-Davies-2/draftkit/internal/models"
)

const (
	PlayersFile = "players.json"
	MetaFile    = "meta.json"
)

// DecodePlayers reads a players.json array.
func DecodePlayers(r io.Reader) ([]models.Player, error) {
	var players []models.Player
	if err := json.NewDecoder(r).Decode(&players); err != nil {
		return nil, fmt.Errorf("decode %s: %w", PlayersFile, err)
	}
	return players, nil
}

// DecodeMeta reads a meta.json object.
func DecodeMeta(r io.Reader) (models.Meta, error) {
	var meta models.Meta
	if err := json.NewDecoder(r).Decode(&meta); err != nil {
		return models.Meta{}, fmt.Errorf("decode %s: %w", MetaFile, err)
	}
	return meta, nil
}

// HTTPSource fetches the dataset relative to a base URL.
type HTTPSource struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPSource parses base; a nil client gets a 30 second timeout.
func NewHTTPSource(base string, client *http.Client) (*HTTPSource, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse data base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("data base URL must be http(s), got %q", base)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSource{base: u, client: client}, nil
}

func (s *HTTPSource) get(ctx context.Context, name string) (io.ReadCloser, error) {
	u := s.base.JoinPath(name).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", u, resp.Status)
	}
	return resp.Body, nil
}

func (s *HTTPSource) Players(ctx context.Context) ([]models.Player, error) {
	body, err := s.get(ctx, PlayersFile)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return DecodePlayers(body)
}

func (s *HTTPSource) Meta(ctx context.Context) (models.Meta, error) {
	body, err := s.get(ctx, MetaFile)
	if err != nil {
		return models.Meta{}, err
	}
	defer body.Close()
	return DecodeMeta(body)
}

// DirSource reads the dataset from a local directory.
type DirSource struct {
	Dir string
}

func (s DirSource) open(ctx context.Context, name string) (*os.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.Dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s not found in %s: %w", name, s.Dir, err)
		}
		return nil, err
	}
	return f, nil
}

func (s DirSource) Players(ctx context.Context) ([]models.Player, error) {
	f, err := s.open(ctx, PlayersFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodePlayers(f)
}

func (s DirSource) Meta(ctx context.Context) (models.Meta, error) {
	f, err := s.open(ctx, MetaFile)
	if err != nil {
		return models.Meta{}, err
	}
	defer f.Close()
	return DecodeMeta(f)
}
