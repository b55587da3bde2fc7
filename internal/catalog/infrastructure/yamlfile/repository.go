package yamlfile

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	catalog "carbon-inventory/internal/catalog/domain"
	inventory "carbon-inventory/internal/inventory/domain"
	mapping "carbon-inventory/internal/mapping/domain"
)

// Document is the on-disk catalog layout, keyed by site id.
type Document struct {
	Sites map[string]SiteDocument `yaml:"sites"`
}

// SiteDocument holds the reference data of one site.
type SiteDocument struct {
	UnitProcesses []namedEntry                   `yaml:"unit_processes"`
	ResourceTypes map[string][]resourceTypeEntry `yaml:"resource_types"`
	Processes     []processEntry                 `yaml:"processes"`
	Products      []mappableEntry                `yaml:"products"`
	ProductGroups []mappableEntry                `yaml:"product_groups"`
}

type namedEntry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type resourceTypeEntry struct {
	ID     string           `yaml:"id"`
	Name   string           `yaml:"name"`
	Unit   string           `yaml:"unit"`
	Factor *decimal.Decimal `yaml:"factor"`
}

type processEntry struct {
	ID           string       `yaml:"id"`
	Name         string       `yaml:"name"`
	SubProcesses []namedEntry `yaml:"sub_processes"`
}

type mappableEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	ProcessName string `yaml:"process_name"`
}

// Repository serves site catalogs from a YAML file. The file is re-read on
// every Load so edits apply to new sessions without a restart.
type Repository struct {
	path string
}

// NewRepository constructs a file-backed repository.
func NewRepository(path string) (*Repository, error) {
	if path == "" {
		return nil, errors.New("yaml catalog: empty path")
	}
	return &Repository{path: path}, nil
}

// Load reads the file and returns the catalog of one site.
func (r *Repository) Load(ctx context.Context, siteID string) (*catalog.Snapshot, error) {
	_ = ctx
	if siteID == "" {
		return nil, catalog.ErrEmptySiteID
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("yaml catalog: read %s: %w", r.path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return doc.Site(siteID)
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml catalog: decode: %w", err)
	}
	return &doc, nil
}

// Site converts one site entry into a validated snapshot.
func (d *Document) Site(siteID string) (*catalog.Snapshot, error) {
	site, ok := d.Sites[siteID]
	if !ok {
		return nil, catalog.ErrSiteNotFound
	}

	snapshot := &catalog.Snapshot{
		SiteID:        siteID,
		ResourceTypes: make(map[inventory.Category][]inventory.ResourceType, len(site.ResourceTypes)),
	}
	for _, up := range site.UnitProcesses {
		snapshot.UnitProcesses = append(snapshot.UnitProcesses, inventory.UnitProcess{ID: up.ID, Name: up.Name})
	}
	for rawCategory, entries := range site.ResourceTypes {
		category, err := inventory.ParseCategory(rawCategory)
		if err != nil {
			return nil, fmt.Errorf("yaml catalog: site %s: %w", siteID, err)
		}
		for _, entry := range entries {
			rt := inventory.ResourceType{ID: entry.ID, Name: entry.Name, Unit: entry.Unit}
			if entry.Factor != nil {
				factor := *entry.Factor
				rt.Factor = &factor
			}
			snapshot.ResourceTypes[category] = append(snapshot.ResourceTypes[category], rt)
		}
	}
	for _, p := range site.Processes {
		process := mapping.Process{ID: p.ID, Name: p.Name}
		for _, sub := range p.SubProcesses {
			process.SubProcesses = append(process.SubProcesses, mapping.SubProcess{ID: sub.ID, Name: sub.Name})
		}
		snapshot.Processes = append(snapshot.Processes, process)
	}
	for _, item := range site.Products {
		snapshot.Mappables = append(snapshot.Mappables, item.toMappable(mapping.ItemTypeProduct))
	}
	for _, item := range site.ProductGroups {
		snapshot.Mappables = append(snapshot.Mappables, item.toMappable(mapping.ItemTypeProductGroup))
	}

	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (e mappableEntry) toMappable(itemType mapping.ItemType) mapping.Mappable {
	return mapping.Mappable{ID: e.ID, Name: e.Name, Type: itemType, ProcessName: e.ProcessName}
}
