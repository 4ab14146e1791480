package watcher

import (
	"fmt"
)

// Address identifies a physical data location (a table, a bucket prefix, a
// topic) by name and type.
type Address struct {
	Name                 string `json:"name" yaml:"name"`
	AddressTypeName      string `json:"address_type_name" yaml:"address_type_name"`
	AddressTypeGroupName string `json:"address_type_group_name" yaml:"address_type_group_name"`
}

// Validate checks required fields.
func (a *Address) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("address name is required")
	}
	if a.AddressTypeName == "" {
		return fmt.Errorf("address type name is required for address %q", a.Name)
	}
	if a.AddressTypeGroupName == "" {
		return fmt.Errorf("address type group name is required for address %q", a.Name)
	}
	return nil
}

// AddressLineage declares where a pipeline reads from and writes to. Both
// sides must be non-empty: lineage with a missing side is meaningless to the
// tracking service.
type AddressLineage struct {
	SourceAddresses []Address `json:"source_addresses" yaml:"source_addresses"`
	TargetAddresses []Address `json:"target_addresses" yaml:"target_addresses"`
}

// Validate checks that both sides are present and each address is valid.
func (l *AddressLineage) Validate() error {
	if len(l.SourceAddresses) == 0 {
		return fmt.Errorf("address lineage requires at least one source address")
	}
	if len(l.TargetAddresses) == 0 {
		return fmt.Errorf("address lineage requires at least one target address")
	}
	for i := range l.SourceAddresses {
		if err := l.SourceAddresses[i].Validate(); err != nil {
			return fmt.Errorf("source address %d: %w", i, err)
		}
	}
	for i := range l.TargetAddresses {
		if err := l.TargetAddresses[i].Validate(); err != nil {
			return fmt.Errorf("target address %d: %w", i, err)
		}
	}
	return nil
}
