package schema

import "fmt"

// ValidatePackagePartition checks the invariant that every installed
// package appears in exactly one of packages_added/removed/modified, and
// that no_baseline implies every package is reported as added.
func ValidatePackagePartition(r RpmSection) error {
	seen := map[string]PackageState{}
	record := func(p Package) error {
		if prior, ok := seen[p.Name]; ok {
			return fmt.Errorf("package %q appears in both %s and %s", p.Name, prior, p.State)
		}
		seen[p.Name] = p.State
		return nil
	}

	for _, p := range r.PackagesAdded {
		if err := record(p); err != nil {
			return err
		}
	}
	for _, p := range r.PackagesRemoved {
		if err := record(p); err != nil {
			return err
		}
	}
	for _, p := range r.PackagesModified {
		if err := record(p); err != nil {
			return err
		}
	}

	if r.NoBaseline {
		for _, p := range r.PackagesAdded {
			if p.State != PackageAdded {
				return fmt.Errorf("no_baseline requires every package to be added, got %q in state %s", p.Name, p.State)
			}
		}
		if len(r.PackagesRemoved) != 0 || len(r.PackagesModified) != 0 {
			return fmt.Errorf("no_baseline requires packages_removed and packages_modified to be empty")
		}
	}

	return nil
}

// ValidateConfigPaths checks that every ConfigFileEntry.Path is unique.
func ValidateConfigPaths(c ConfigSection) error {
	seen := map[string]bool{}
	for _, f := range c.Files {
		if seen[f.Path] {
			return fmt.Errorf("duplicate config file path %q", f.Path)
		}
		seen[f.Path] = true
	}
	return nil
}
