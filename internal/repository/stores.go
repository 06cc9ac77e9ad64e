package repository

import "database/sql"

// Stores bundles one implementation of every repository. Both the Postgres
// and the embedded backend produce one.
type Stores struct {
	Phishlets PhishletRepositoryInterface
	Campaigns CampaignRepositoryInterface
	Results   ResultRepositoryInterface
	Targets   TargetRepositoryInterface
	Catalog   CatalogRepositoryInterface
	Events    EventRepositoryInterface
}

func NewPostgresStores(db *sql.DB) *Stores {
	return &Stores{
		Phishlets: &PhishletRepository{DB: db},
		Campaigns: &CampaignRepository{DB: db},
		Results:   &ResultRepository{DB: db},
		Targets:   &TargetRepository{DB: db},
		Catalog:   &CatalogRepository{DB: db},
		Events:    &EventRepository{DB: db},
	}
}
