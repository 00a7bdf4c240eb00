package subscriptions

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"peerpress/app/database"
	"peerpress/app/feed"
)

// Seed describes a site to follow, read from a YAML file in the feeds
// directory. Seeds make followed sites reproducible across deployments;
// relationships created through the API are not written back to files.
type Seed struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Role     string `yaml:"role"`
	CatchAll string `yaml:"catch_all"`
	Feeds    []struct {
		URL        string `yaml:"url"`
		Title      string `yaml:"title"`
		Parser     string `yaml:"parser"`
		MimeType   string `yaml:"mime_type"`
		PostFormat string `yaml:"post_format"`
		Active     *bool  `yaml:"active"`
	} `yaml:"feeds"`
}

// Loader reads seed files and applies them to the database.
type Loader struct {
	feedsDir   string
	friendRepo database.FriendRepository
	subRepo    database.SubscriptionRepository
	registry   *feed.Registry
	logger     *slog.Logger
}

func NewLoader(feedsDir string, friendRepo database.FriendRepository,
	subRepo database.SubscriptionRepository, registry *feed.Registry) *Loader {
	return &Loader{
		feedsDir:   feedsDir,
		friendRepo: friendRepo,
		subRepo:    subRepo,
		registry:   registry,
		logger:     slog.Default().With("component", "subscriptions"),
	}
}

// Run loads every seed file and creates the missing friends and
// subscriptions. Existing rows keep their state; seeds never demote an
// established relationship.
func (l *Loader) Run() error {
	if _, err := os.Stat(l.feedsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(l.feedsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		seed, err := l.parseSeed(file)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}
		if err := l.apply(seed); err != nil {
			return fmt.Errorf("error applying %s: %w", file, err)
		}
		l.logger.Debug("Seed loaded", "url", seed.URL, "feeds", len(seed.Feeds))
	}

	return nil
}

func (l *Loader) parseSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seed.URL = strings.TrimRight(strings.TrimSpace(seed.URL), "/")
	if seed.URL == "" {
		return nil, fmt.Errorf("seed is missing a url")
	}
	if seed.Role == "" {
		seed.Role = database.RoleSubscription
	}
	switch seed.Role {
	case database.RoleSubscription, database.RoleFriend, database.RoleAcquaintance, database.RoleRestrictedFriend:
	default:
		return nil, fmt.Errorf("unknown role %q", seed.Role)
	}
	if len(seed.Feeds) == 0 {
		return nil, fmt.Errorf("seed has no feeds")
	}
	return &seed, nil
}

func (l *Loader) apply(seed *Seed) error {
	friend, err := l.friendRepo.GetFriendByURL(seed.URL)
	if err != nil {
		return err
	}
	if friend == nil {
		name := seed.Name
		if name == "" {
			name = seed.URL
		}
		friend = &database.Friend{
			ID:          uuid.NewString(),
			URL:         seed.URL,
			DisplayName: name,
			Role:        seed.Role,
			CatchAll:    feed.ValidateCatchAll(seed.CatchAll),
		}
		if err := l.friendRepo.CreateFriend(friend); err != nil {
			return err
		}
	}

	for _, seedFeed := range seed.Feeds {
		parser := seedFeed.Parser
		if parser == "" {
			parser = l.registry.Rank(seedFeed.URL, seedFeed.MimeType, seedFeed.Title)
		}
		if parser == "" {
			l.logger.Warn("No parser for seed feed, skipping", "url", seedFeed.URL)
			continue
		}
		active := true
		if seedFeed.Active != nil {
			active = *seedFeed.Active
		}
		subscription := &database.Subscription{
			FriendID:   friend.ID,
			URL:        seedFeed.URL,
			Title:      seedFeed.Title,
			Parser:     parser,
			MimeType:   seedFeed.MimeType,
			PostFormat: seedFeed.PostFormat,
			Active:     active,
		}
		if err := l.subRepo.UpsertSubscription(subscription); err != nil {
			return err
		}
	}
	return nil
}
