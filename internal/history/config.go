package history

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/rcliao/opshistory/internal/codec"
)

const (
	DefaultCountLimit     = 60
	DefaultMemoryBudgetMB = 100

	// MinRetained is the number of operations memory eviction never goes below.
	MinRetained = 10

	// memoryTarget is the share of the budget memory eviction frees down to.
	memoryTarget = 0.8

	operationLogCap  = 1000
	operationLogKeep = 500

	bytesPerMB = 1024 * 1024
)

// DefaultEntityCollections are the state keys counted into a snapshot's
// entity count when the state is a map.
var DefaultEntityCollections = []string{"work_rooms", "work_areas", "work_openings"}

// Config configures an Engine.
type Config struct {
	// CountLimit is the maximum number of operations kept on the undo stack.
	CountLimit int `json:"count_limit" yaml:"count_limit"`

	// MemoryBudgetMB is a soft ceiling on the encoded size of every snapshot
	// in both stacks. Fractions are allowed.
	MemoryBudgetMB float64 `json:"memory_budget_mb" yaml:"memory_budget_mb"`

	// AutoCleanup enables count and memory eviction after each push.
	AutoCleanup bool `json:"auto_cleanup" yaml:"auto_cleanup"`

	// Codec encodes new snapshots. Existing snapshots keep their own codec.
	Codec codec.Kind `json:"codec" yaml:"codec"`

	// EmbedPayloads makes SaveFile include snapshot payloads. Without them a
	// loaded history lists operations but cannot undo or redo them.
	EmbedPayloads bool `json:"embed_payloads" yaml:"embed_payloads"`

	// EntityCollections are the map keys summed into Snapshot.EntityCount.
	EntityCollections []string `json:"entity_collections" yaml:"entity_collections"`

	// DebugLog keeps an in-memory log of push/undo/redo actions.
	DebugLog bool `json:"debug_log" yaml:"debug_log"`

	// Logger receives engine logs. Default: slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CountLimit:        DefaultCountLimit,
		MemoryBudgetMB:    DefaultMemoryBudgetMB,
		AutoCleanup:       true,
		Codec:             codec.Native,
		EntityCollections: append([]string(nil), DefaultEntityCollections...),
		Logger:            slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.CountLimit <= 0 {
		return fmt.Errorf("count_limit must be positive, got %d", c.CountLimit)
	}
	if c.MemoryBudgetMB <= 0 {
		return fmt.Errorf("memory_budget_mb must be positive, got %g", c.MemoryBudgetMB)
	}
	if c.Codec == "" {
		return errors.New("codec must not be empty")
	}
	if _, err := codec.ParseKind(string(c.Codec)); err != nil {
		return err
	}
	return nil
}

func (c *Config) budgetBytes() int64 {
	return int64(c.MemoryBudgetMB * bytesPerMB)
}

func toMB(n int64) float64 {
	return float64(n) / bytesPerMB
}
