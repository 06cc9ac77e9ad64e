// cmd/seeder/main.go
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/unclebandit/phishsim-backend/internal/app"
	"github.com/unclebandit/phishsim-backend/internal/config"
	"github.com/unclebandit/phishsim-backend/internal/logger"
	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/repository"
)

// GroupFixture is a group together with its members.
type GroupFixture struct {
	model.Group `yaml:",inline"`
	Targets     []model.Target `yaml:"targets"`
}

// Fixtures is the layout of a seed file.
type Fixtures struct {
	Groups      []GroupFixture        `yaml:"groups"`
	Targets     []model.Target        `yaml:"targets"`
	Senders     []model.SenderProfile `yaml:"senders"`
	Templates   []model.EmailTemplate `yaml:"templates"`
	Attachments []model.Attachment    `yaml:"attachments"`
}

type seedCounts struct {
	Groups, Targets, Senders, Templates, Attachments int
}

func loadFixtures(r io.Reader) (*Fixtures, error) {
	var fx Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return &fx, nil
}

// seed inserts fx in dependency order. Group members get the new group's
// id regardless of what the file says.
func seed(stores *repository.Stores, fx *Fixtures) (seedCounts, error) {
	var n seedCounts

	for i := range fx.Groups {
		g := &fx.Groups[i]
		if err := stores.Targets.CreateGroup(&g.Group); err != nil {
			return n, fmt.Errorf("group %q: %w", g.Name, err)
		}
		n.Groups++
		for j := range g.Targets {
			t := &g.Targets[j]
			groupID := g.ID
			t.GroupID = &groupID
			if err := stores.Targets.Create(t); err != nil {
				return n, fmt.Errorf("target %q: %w", t.Email, err)
			}
			n.Targets++
		}
	}

	for i := range fx.Targets {
		t := &fx.Targets[i]
		if err := stores.Targets.Create(t); err != nil {
			return n, fmt.Errorf("target %q: %w", t.Email, err)
		}
		n.Targets++
	}

	for i := range fx.Senders {
		if err := stores.Catalog.CreateSenderProfile(&fx.Senders[i]); err != nil {
			return n, fmt.Errorf("sender %q: %w", fx.Senders[i].Name, err)
		}
		n.Senders++
	}
	for i := range fx.Templates {
		if err := stores.Catalog.CreateEmailTemplate(&fx.Templates[i]); err != nil {
			return n, fmt.Errorf("template %q: %w", fx.Templates[i].Name, err)
		}
		n.Templates++
	}
	for i := range fx.Attachments {
		if err := stores.Catalog.CreateAttachment(&fx.Attachments[i]); err != nil {
			return n, fmt.Errorf("attachment %q: %w", fx.Attachments[i].Name, err)
		}
		n.Attachments++
	}
	return n, nil
}

func main() {
	file := flag.String("file", "seed/fixtures.yaml", "YAML fixtures to load")
	flag.Parse()

	cfg, _, err := config.Load()
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	if err := logger.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		logger.Fatalf("logger: %v", err)
	}

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatalf("failed to read %s: %v", *file, err)
	}
	defer f.Close()

	fx, err := loadFixtures(f)
	if err != nil {
		logger.Fatalf("❌ %v", err)
	}

	stores, closer, err := app.OpenStores(cfg)
	if err != nil {
		logger.Fatalf("❌ %v", err)
	}
	defer closer.Close()

	n, err := seed(stores, fx)
	if err != nil {
		logger.Fatalf("❌ seeding %s: %v", *file, err)
	}

	logger.WithFields(logger.Fields{
		"groups":      n.Groups,
		"targets":     n.Targets,
		"senders":     n.Senders,
		"templates":   n.Templates,
		"attachments": n.Attachments,
	}).Infof("✅ Seeded %s", *file)
}
