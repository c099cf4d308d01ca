package dedup

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/errors"
)

// Collection binds a known collection name to the table it is stored in and
// the key path that identifies duplicates.
type Collection struct {
	Name    string
	Table   string
	KeyPath KeyPath
}

// Projection lists the fields a scan must return besides the identifier.
func (c Collection) Projection() []string {
	return []string{c.KeyPath.Top()}
}

var knownCollections = map[string]string{
	"commits": "commit.id",
	"events":  "id",
}

// CollectionNames returns the known collection names in sorted order.
func CollectionNames() []string {
	names := make([]string, 0, len(knownCollections))
	for name := range knownCollections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupCollection resolves a collection by name. Overrides may relocate a
// known collection or change its key path but cannot introduce new names.
func LookupCollection(name string, overrides map[string]config.CollectionConfig) (Collection, error) {
	keyPath, ok := knownCollections[name]
	if !ok {
		return Collection{}, apperrors.Newf(apperrors.ErrUnknownCollection, apperrors.ExitConfig,
			"not a known collection name: %q (known: %s)", name, strings.Join(CollectionNames(), ", "))
	}
	table := name
	if o, ok := overrides[name]; ok {
		if o.Table != "" {
			table = o.Table
		}
		if o.KeyPath != "" {
			keyPath = o.KeyPath
		}
	}
	kp, err := ParseKeyPath(keyPath)
	if err != nil {
		return Collection{}, err
	}
	return Collection{Name: name, Table: table, KeyPath: kp}, nil
}
