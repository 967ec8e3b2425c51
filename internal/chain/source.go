package chain

import "fmt"

// SourceKind discriminates the two balance classes on the credit ledger.
type SourceKind uint8

const (
	KindFungible SourceKind = iota
	KindPackage
)

// Source identifies one spendable balance: the fungible ERC-20-style ledger
// balance, or one NFT-bound package counter. Package is meaningful only when
// Kind == KindPackage.
type Source struct {
	Kind    SourceKind
	Package uint8
}

// Fungible returns the fungible-balance source.
func Fungible() Source { return Source{Kind: KindFungible} }

// PackageSource returns the source for a given credit-package id.
func PackageSource(id uint8) Source { return Source{Kind: KindPackage, Package: id} }

func (s Source) String() string {
	switch s.Kind {
	case KindFungible:
		return "fungible"
	case KindPackage:
		return fmt.Sprintf("package:%d", s.Package)
	default:
		return "unknown"
	}
}

// ParseSource is the inverse of String; reservations store their source as a
// string and rebuild it on read.
func ParseSource(raw string) (Source, error) {
	if raw == "fungible" {
		return Fungible(), nil
	}
	var id uint8
	if _, err := fmt.Sscanf(raw, "package:%d", &id); err != nil {
		return Source{}, fmt.Errorf("parse source %q: %w", raw, err)
	}
	return PackageSource(id), nil
}

// ContractID maps the source onto the contract's uint8 encoding: 0 is the
// fungible balance, package ids are carried as-is.
func (s Source) ContractID() uint8 {
	if s.Kind == KindPackage {
		return s.Package
	}
	return 0
}
