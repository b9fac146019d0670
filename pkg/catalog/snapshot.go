// Package catalog holds the in-memory view of the data catalog: domains,
// owners, tables, and columns. A snapshot is immutable; the indexing job
// builds a new one and swaps it in atomically.
package catalog

import (
	"sort"
	"sync/atomic"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// Snapshot is one immutable generation of the catalog. All lookup maps are
// built at construction; never mutate a snapshot after publishing it.
type Snapshot struct {
	Generation uint64

	domains []models.DomainInfo
	owners  []models.OwnerInfo
	tables  []models.TableInfo
	columns []models.ColumnInfo

	domainByID     map[string]*models.DomainInfo
	ownerByID      map[string]*models.OwnerInfo
	ownersByDomain map[string][]*models.OwnerInfo
	tableByID      map[string]*models.TableInfo
	tableByName    map[string]*models.TableInfo
}

// NewSnapshot builds a Snapshot with all indexes. Input slices are copied;
// domains are kept in a stable alphabetical order so fallback results do not
// shuffle between requests.
func NewSnapshot(domains []models.DomainInfo, owners []models.OwnerInfo, tables []models.TableInfo, columns []models.ColumnInfo) *Snapshot {
	s := &Snapshot{
		domains:        append([]models.DomainInfo(nil), domains...),
		owners:         append([]models.OwnerInfo(nil), owners...),
		tables:         append([]models.TableInfo(nil), tables...),
		columns:        append([]models.ColumnInfo(nil), columns...),
		domainByID:     make(map[string]*models.DomainInfo, len(domains)),
		ownerByID:      make(map[string]*models.OwnerInfo, len(owners)),
		ownersByDomain: make(map[string][]*models.OwnerInfo),
		tableByID:      make(map[string]*models.TableInfo, len(tables)),
		tableByName:    make(map[string]*models.TableInfo, len(tables)),
	}

	sort.Slice(s.domains, func(i, j int) bool { return s.domains[i].ID < s.domains[j].ID })

	for i := range s.domains {
		d := &s.domains[i]
		s.domainByID[d.ID] = d
	}
	for i := range s.owners {
		o := &s.owners[i]
		s.ownerByID[o.ID] = o
		s.ownersByDomain[o.DomainID] = append(s.ownersByDomain[o.DomainID], o)
	}
	for i := range s.tables {
		t := &s.tables[i]
		s.tableByID[t.ID] = t
		s.tableByName[t.Name] = t
	}

	return s
}

// Domains returns all domains in stable alphabetical-id order.
func (s *Snapshot) Domains() []models.DomainInfo { return s.domains }

// Owners returns all owners.
func (s *Snapshot) Owners() []models.OwnerInfo { return s.owners }

// Tables returns all tables.
func (s *Snapshot) Tables() []models.TableInfo { return s.tables }

// Columns returns all columns.
func (s *Snapshot) Columns() []models.ColumnInfo { return s.columns }

// Domain returns the domain with the given id, or nil.
func (s *Snapshot) Domain(id string) *models.DomainInfo { return s.domainByID[id] }

// Owner returns the owner with the given id, or nil.
func (s *Snapshot) Owner(id string) *models.OwnerInfo { return s.ownerByID[id] }

// OwnersInDomain returns all owners registered for a domain.
func (s *Snapshot) OwnersInDomain(domainID string) []*models.OwnerInfo {
	return s.ownersByDomain[domainID]
}

// Table returns the table with the given id, or nil.
func (s *Snapshot) Table(id string) *models.TableInfo { return s.tableByID[id] }

// TableByName returns the table with the given physical name, or nil.
func (s *Snapshot) TableByName(name string) *models.TableInfo { return s.tableByName[name] }

// IsEmpty reports whether the snapshot has no tables.
func (s *Snapshot) IsEmpty() bool { return len(s.tables) == 0 }

// Store publishes catalog snapshots. Readers get a consistent generation for
// the duration of a request; Replace swaps generations atomically.
type Store struct {
	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
}

// NewStore creates a Store seeded with an empty snapshot.
func NewStore() *Store {
	st := &Store{}
	st.Replace(NewSnapshot(nil, nil, nil, nil))
	return st
}

// Load returns the current snapshot. Never nil.
func (st *Store) Load() *Snapshot {
	return st.current.Load()
}

// Replace publishes a new snapshot, stamping the next generation.
func (st *Store) Replace(s *Snapshot) {
	s.Generation = st.generation.Add(1)
	st.current.Store(s)
}
