package resolve

import (
	"errors"
	"log/slog"

	"github.com/lumenvc/dossier/database"
	"github.com/lumenvc/dossier/helper"
	"github.com/lumenvc/dossier/model"
)

// maxResolveAttempts bounds the conflict re-resolve loop. One conflict means
// a concurrent writer created the record; the re-query must then find it.
const maxResolveAttempts = 3

// Resolver maps raw mentions to canonical entity records. Matching follows a
// fixed priority: LinkedIn URL, then company URL or person email, then
// case-insensitive substring name containment, then create. There is no
// internal locking; concurrent creation of the same strong identity is
// resolved through the relational uniqueness constraints and a
// catch-conflict-and-re-resolve loop. Name-only duplicates from concurrent
// fuzzy misses are a documented limitation.
type Resolver struct {
	companies database.CompaniesDBHandlerFunctions
	people    database.PeopleDBHandlerFunctions
	logger    *slog.Logger
}

// ResolverFunctions defines the interface for entity resolution.
type ResolverFunctions interface {
	Resolve(mention model.Mention) (*model.EntityRef, error)
	ResolveAll(mentions []model.Mention) ([]model.EntityRef, error)
	Lookup(mention model.Mention) (*model.EntityRef, error)
	LookupAll(mentions []model.Mention) ([]model.EntityRef, error)
}

// NewResolver creates an entity resolver over the given entity handlers
func NewResolver(companies database.CompaniesDBHandlerFunctions, people database.PeopleDBHandlerFunctions, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		companies: companies,
		people:    people,
		logger:    logger,
	}
}

// Resolve maps a mention to a canonical entity, creating one if nothing
// matches. A match that lacks fields the mention supplies is enriched in
// place; populated fields are never overwritten.
func (r *Resolver) Resolve(mention model.Mention) (*model.EntityRef, error) {
	if err := validateMention(mention); err != nil {
		return nil, err
	}

	var ref *model.EntityRef
	var err error
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		switch mention.Kind {
		case model.EntityKindCompany:
			ref, err = r.resolveCompany(mention)
		case model.EntityKindPerson:
			ref, err = r.resolvePerson(mention)
		}
		if !errors.Is(err, helper.ErrConflict) {
			return ref, err
		}
		// A concurrent writer created the same strong identity between our
		// match phase and our insert. Re-resolve; the re-query finds it.
		r.logger.Debug("conflict during entity creation, re-resolving", "kind", mention.Kind, "name", mention.Name)
	}

	return nil, helper.NewError("resolve", err)
}

// ResolveAll resolves every mention, de-duplicated by canonical ID.
// A failed mention fails the whole batch.
func (r *Resolver) ResolveAll(mentions []model.Mention) ([]model.EntityRef, error) {
	var refs []model.EntityRef
	seen := map[string]bool{}

	for _, mention := range mentions {
		ref, err := r.Resolve(mention)
		if err != nil {
			return nil, err
		}
		if seen[ref.ID.String()] {
			continue
		}
		seen[ref.ID.String()] = true
		refs = append(refs, *ref)
	}

	return refs, nil
}

// Lookup matches a mention against existing canonical records without
// creating or enriching anything. Returns ErrNotFound when nothing matches.
func (r *Resolver) Lookup(mention model.Mention) (*model.EntityRef, error) {
	if err := validateMention(mention); err != nil {
		return nil, err
	}

	switch mention.Kind {
	case model.EntityKindPerson:
		person, err := r.matchPerson(mention)
		if err != nil {
			return nil, err
		}
		return personRef(person), nil
	default:
		company, err := r.matchCompany(mention)
		if err != nil {
			return nil, err
		}
		return companyRef(company), nil
	}
}

// LookupAll matches every mention, skipping the unmatched ones,
// de-duplicated by canonical ID
func (r *Resolver) LookupAll(mentions []model.Mention) ([]model.EntityRef, error) {
	var refs []model.EntityRef
	seen := map[string]bool{}

	for _, mention := range mentions {
		ref, err := r.Lookup(mention)
		if errors.Is(err, helper.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if seen[ref.ID.String()] {
			continue
		}
		seen[ref.ID.String()] = true
		refs = append(refs, *ref)
	}

	return refs, nil
}

func (r *Resolver) resolveCompany(mention model.Mention) (*model.EntityRef, error) {
	company, err := r.matchCompany(mention)
	if err == nil {
		if err := r.enrichCompany(company, mention); err != nil {
			return nil, err
		}
		return companyRef(company), nil
	}
	if !errors.Is(err, helper.ErrNotFound) {
		return nil, err
	}

	company = &model.Company{
		Name:        mention.Name,
		URL:         mention.URL,
		LinkedInURL: mention.LinkedInURL,
	}
	if err := r.companies.InsertCompany(company); err != nil {
		return nil, err
	}

	r.logger.Info("created company", "id", company.ID, "name", company.Name)
	return companyRef(company), nil
}

// matchCompany walks the matching priority for companies: LinkedIn URL,
// canonical URL, then fuzzy name containment.
func (r *Resolver) matchCompany(mention model.Mention) (*model.Company, error) {
	if mention.LinkedInURL != nil {
		company, err := r.companies.SelectCompanyByLinkedIn(*mention.LinkedInURL)
		if err == nil {
			return company, nil
		}
		if !errors.Is(err, helper.ErrNotFound) {
			return nil, err
		}
	}

	if mention.URL != nil {
		company, err := r.companies.SelectCompanyByURL(*mention.URL)
		if err == nil {
			return company, nil
		}
		if !errors.Is(err, helper.ErrNotFound) {
			return nil, err
		}
	}

	// Fuzzy containment match; candidates come back ordered by created_at
	// then id, so the earliest-created record wins deterministically.
	candidates, err := r.companies.SearchCompaniesByName(mention.Name, 1)
	if err != nil {
		return nil, err
	}
	if len(candidates) > 0 {
		return candidates[0], nil
	}

	return nil, helper.NewError("match company", helper.ErrNotFound)
}

func (r *Resolver) enrichCompany(company *model.Company, mention model.Mention) error {
	if !needsFill(company.URL, mention.URL) &&
		!needsFill(company.LinkedInURL, mention.LinkedInURL) {
		return nil
	}

	update := &model.Company{
		ID:          company.ID,
		URL:         mention.URL,
		LinkedInURL: mention.LinkedInURL,
	}
	if err := r.companies.FillCompany(update); err != nil {
		return err
	}
	*company = *update

	r.logger.Debug("enriched company", "id", company.ID, "name", company.Name)
	return nil
}

func (r *Resolver) resolvePerson(mention model.Mention) (*model.EntityRef, error) {
	person, err := r.matchPerson(mention)
	if err == nil {
		if err := r.enrichPerson(person, mention); err != nil {
			return nil, err
		}
		return personRef(person), nil
	}
	if !errors.Is(err, helper.ErrNotFound) {
		return nil, err
	}

	person = &model.Person{
		Name:        mention.Name,
		Email:       mention.Email,
		LinkedInURL: mention.LinkedInURL,
	}
	if err := r.people.InsertPerson(person); err != nil {
		return nil, err
	}

	r.logger.Info("created person", "id", person.ID, "name", person.Name)
	return personRef(person), nil
}

// matchPerson walks the matching priority for people: LinkedIn URL, email,
// then fuzzy name containment.
func (r *Resolver) matchPerson(mention model.Mention) (*model.Person, error) {
	if mention.LinkedInURL != nil {
		person, err := r.people.SelectPersonByLinkedIn(*mention.LinkedInURL)
		if err == nil {
			return person, nil
		}
		if !errors.Is(err, helper.ErrNotFound) {
			return nil, err
		}
	}

	if mention.Email != nil {
		person, err := r.people.SelectPersonByEmail(*mention.Email)
		if err == nil {
			return person, nil
		}
		if !errors.Is(err, helper.ErrNotFound) {
			return nil, err
		}
	}

	candidates, err := r.people.SearchPeopleByName(mention.Name, 1)
	if err != nil {
		return nil, err
	}
	if len(candidates) > 0 {
		return candidates[0], nil
	}

	return nil, helper.NewError("match person", helper.ErrNotFound)
}

func (r *Resolver) enrichPerson(person *model.Person, mention model.Mention) error {
	if !needsFill(person.Email, mention.Email) &&
		!needsFill(person.LinkedInURL, mention.LinkedInURL) {
		return nil
	}

	update := &model.Person{
		ID:          person.ID,
		Email:       mention.Email,
		LinkedInURL: mention.LinkedInURL,
	}
	if err := r.people.FillPerson(update); err != nil {
		return err
	}
	*person = *update

	r.logger.Debug("enriched person", "id", person.ID, "name", person.Name)
	return nil
}

func validateMention(mention model.Mention) error {
	if mention.Kind != model.EntityKindCompany && mention.Kind != model.EntityKindPerson {
		return helper.NewValidationError("resolve", "unknown entity kind "+string(mention.Kind))
	}
	if mention.Name == "" {
		return helper.NewValidationError("resolve", "mention has no name")
	}
	return nil
}

func needsFill(existing, incoming *string) bool {
	return existing == nil && incoming != nil && *incoming != ""
}

func companyRef(company *model.Company) *model.EntityRef {
	return &model.EntityRef{
		ID:   company.ID,
		Kind: model.EntityKindCompany,
		Name: company.Name,
	}
}

func personRef(person *model.Person) *model.EntityRef {
	return &model.EntityRef{
		ID:   person.ID,
		Kind: model.EntityKindPerson,
		Name: person.Name,
	}
}
