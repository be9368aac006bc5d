package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"reelscribe/internal/config"
	"reelscribe/internal/queue"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the status database for the duration of fn.
func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open status database: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

// resolveFile accepts a file ID or the registered path of a media file.
func resolveFile(ctx context.Context, store *queue.Store, ref string) (*queue.MediaFile, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("file id or path is required")
	}
	file, err := store.GetFile(ctx, ref)
	if err != nil {
		return nil, err
	}
	if file != nil {
		return file, nil
	}
	if expanded, err := config.ExpandPath(ref); err == nil {
		file, err = store.FindByPath(ctx, expanded)
		if err != nil {
			return nil, err
		}
		if file != nil {
			return file, nil
		}
	}
	return nil, fmt.Errorf("file %s not found", ref)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
