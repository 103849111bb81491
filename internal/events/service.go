package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"nesavent/internal/apperr"
	"nesavent/internal/clock"
	eventdb "nesavent/internal/events/db"
	"nesavent/internal/logger"
	"nesavent/internal/models"
	"nesavent/internal/utils"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 12
	maxPageSize     = 50
	maxSlugAttempts = 100
)

type DBLayer interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEventBySlug(ctx context.Context, slug string) (*models.Event, error)
	UpdateEvent(ctx context.Context, event *models.Event, upserts []*models.TicketType, stockChanged map[string]bool, removed []string) error
	DeleteEvent(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, from, to models.EventStatus, verification string, now time.Time) (bool, error)
	IncrementViewCount(ctx context.Context, id string) error
	ListEvents(ctx context.Context, f models.EventFilter, limit, offset int) ([]*models.Event, int, error)
}

// ListCache is optional; a nil cache disables list caching and view cooldown.
type ListCache interface {
	GetList(ctx context.Context, signature string) (*models.EventPage, bool, error)
	SetList(ctx context.Context, signature string, page *models.EventPage) error
	InvalidateLists(ctx context.Context) error
	MarkViewed(ctx context.Context, eventID, viewer string) (bool, error)
}

type EventService struct {
	DB     DBLayer
	Cache  ListCache
	Clock  clock.Clock
	Logger *logger.Logger
}

func NewEventService(db DBLayer, cache ListCache, clk clock.Clock, log *logger.Logger) *EventService {
	return &EventService{DB: db, Cache: cache, Clock: clk, Logger: log}
}

// Create registers a new event. Admin events are published immediately,
// organizer events wait for moderation.
func (s *EventService) Create(ctx context.Context, caller models.Caller, input models.EventInput) (*models.Event, error) {
	if caller.Role != models.RoleAdmin && caller.Role != models.RoleMitra {
		return nil, ErrCannotCreateEvent
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	slug, err := s.uniqueSlug(ctx, utils.Slugify(input.Name))
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	event := &models.Event{
		ID:                 uuid.NewString(),
		Slug:               slug,
		Name:               input.Name,
		Description:        input.Description,
		Category:           input.Category,
		Location:           input.Location,
		StartDate:          input.StartDate,
		EndDate:            input.EndDate,
		OrganizerID:        caller.UserID,
		Status:             models.EventPending,
		VerificationStatus: "pending",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if caller.IsAdmin() {
		event.Status = models.EventAktif
		event.VerificationStatus = "approved"
	}

	for i, in := range input.TicketTypes {
		event.TicketTypes = append(event.TicketTypes, newTier(event.ID, i, in))
	}

	if err := s.DB.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	s.invalidate(ctx)

	s.Logger.Info("EVENT", fmt.Sprintf("Created event %s (%s) by %s with status %s", event.Slug, event.ID, caller.UserID, event.Status))
	return event, nil
}

func (s *EventService) uniqueSlug(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 1; i <= maxSlugAttempts; i++ {
		exists, err := s.DB.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
	return base + "-" + uuid.NewString()[:8], nil
}

// newTier builds a tier row from input. The id is always server generated;
// Update swaps in the id of a matched existing tier.
func newTier(eventID string, position int, in models.TicketTypeInput) *models.TicketType {
	return &models.TicketType{
		ID:                   uuid.NewString(),
		EventID:              eventID,
		Urutan:               position,
		Name:                 in.Name,
		Description:          in.Description,
		Harga:                in.Harga,
		Stok:                 in.Stok,
		StokTersisa:          in.Stok,
		StokPending:          0,
		MaxPembelianPerOrang: in.MaxPembelianPerOrang,
		MulaiJual:            in.MulaiJual,
		AkhirJual:            in.AkhirJual,
		AllowedRoles:         models.RoleList(in.AllowedRoles),
		KhususMahasiswa:      in.KhususMahasiswa,
	}
}

func validateInput(input models.EventInput) error {
	if len(input.TicketTypes) == 0 {
		return ErrNoTicketTypes
	}
	if err := utils.Validate(input); err != nil {
		return err
	}
	if input.EndDate.Before(input.StartDate) {
		return ErrInvalidSchedule
	}
	for _, tt := range input.TicketTypes {
		if tt.Harga.IsNegative() {
			return ErrNegativePrice
		}
		if !tt.Harga.IsInteger() {
			return ErrFractionalPrice
		}
		if tt.KhususMahasiswa && tt.MaxPembelianPerOrang == nil {
			return ErrStudentTierNeedCap
		}
		if tt.MulaiJual != nil && tt.AkhirJual != nil && tt.AkhirJual.Before(*tt.MulaiJual) {
			return ErrInvalidSaleWindow
		}
	}
	return nil
}

func (s *EventService) loadOwned(ctx context.Context, caller models.Caller, slug string) (*models.Event, error) {
	event, err := s.DB.GetEventBySlug(ctx, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", slug, err)
	}
	if !caller.IsAdmin() && event.OrganizerID != caller.UserID {
		return nil, ErrNotEventOwner
	}
	return event, nil
}

// Update edits event details and tiers. Tier stock can only be changed while
// nothing has been reserved or sold from that tier.
func (s *EventService) Update(ctx context.Context, caller models.Caller, slug string, input models.EventInput) (*models.Event, error) {
	event, err := s.loadOwned(ctx, caller, slug)
	if err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	existing := make(map[string]*models.TicketType, len(event.TicketTypes))
	for _, tt := range event.TicketTypes {
		existing[tt.ID] = tt
	}

	var upserts []*models.TicketType
	stockChanged := map[string]bool{}
	kept := map[string]bool{}
	for i, in := range input.TicketTypes {
		tier := newTier(event.ID, i, in)
		if in.ID != "" {
			old, ok := existing[in.ID]
			if !ok {
				return nil, ErrTicketTypeNotFound
			}
			if kept[in.ID] {
				return nil, ErrDuplicateTierID
			}
			kept[in.ID] = true
			tier.ID = old.ID
			if old.Stok != in.Stok {
				if old.HasSales() {
					return nil, ErrTierHasSales
				}
				stockChanged[in.ID] = true
			}
			tier.Stok = old.Stok
			tier.StokTersisa = old.StokTersisa
			tier.StokPending = old.StokPending
			if stockChanged[in.ID] {
				tier.Stok = in.Stok
				tier.StokTersisa = in.Stok
			}
		}
		upserts = append(upserts, tier)
	}

	var removed []string
	for id, old := range existing {
		if kept[id] {
			continue
		}
		if old.HasSales() {
			return nil, ErrTierHasSales
		}
		removed = append(removed, id)
	}

	event.Name = input.Name
	event.Description = input.Description
	event.Category = input.Category
	event.Location = input.Location
	event.StartDate = input.StartDate
	event.EndDate = input.EndDate
	event.UpdatedAt = s.Clock.Now()

	if err := s.DB.UpdateEvent(ctx, event, upserts, stockChanged, removed); err != nil {
		if errors.Is(err, eventdb.ErrTierHasSales) {
			return nil, ErrTierHasSales
		}
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	s.invalidate(ctx)

	event.TicketTypes = upserts
	s.Logger.Info("EVENT", fmt.Sprintf("Updated event %s by %s", event.Slug, caller.UserID))
	return event, nil
}

func (s *EventService) Delete(ctx context.Context, caller models.Caller, slug string) error {
	event, err := s.loadOwned(ctx, caller, slug)
	if err != nil {
		return err
	}
	if err := s.DB.DeleteEvent(ctx, event.ID); err != nil {
		if errors.Is(err, eventdb.ErrEventHasOrders) {
			return ErrEventHasOrders
		}
		return fmt.Errorf("failed to delete event: %w", err)
	}
	s.invalidate(ctx)

	s.Logger.Info("EVENT", fmt.Sprintf("Deleted event %s by %s", event.Slug, caller.UserID))
	return nil
}

// ChangeStatus applies a moderation or lifecycle transition.
func (s *EventService) ChangeStatus(ctx context.Context, caller models.Caller, slug string, next models.EventStatus) (*models.Event, error) {
	event, err := s.loadOwned(ctx, caller, slug)
	if err != nil {
		return nil, err
	}
	if !event.Status.CanTransitionTo(next, caller.IsAdmin()) {
		return nil, apperr.Wrap(ErrInvalidTransition, fmt.Errorf("%s -> %s", event.Status, next))
	}

	verification := ""
	switch next {
	case models.EventAktif:
		verification = "approved"
	case models.EventDitolak:
		verification = "rejected"
	case models.EventPending:
		verification = "pending"
	}

	ok, err := s.DB.UpdateStatus(ctx, event.ID, event.Status, next, verification, s.Clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to update event status: %w", err)
	}
	if !ok {
		return nil, apperr.Wrap(ErrInvalidTransition, errors.New("status changed concurrently"))
	}
	s.invalidate(ctx)

	event.Status = next
	if verification != "" {
		event.VerificationStatus = verification
	}
	s.Logger.Info("EVENT", fmt.Sprintf("Event %s moved to %s by %s", event.Slug, next, caller.UserID))
	return event, nil
}

// List returns a page of aktif events, served from cache when possible.
func (s *EventService) List(ctx context.Context, f models.EventFilter) (*models.EventPage, error) {
	page, limit, offset := utils.Paginate(f.Page, f.Limit, defaultPageSize, maxPageSize)
	f.Page, f.Limit = page, limit
	signature := filterSignature(f)

	if s.Cache != nil {
		cached, ok, err := s.Cache.GetList(ctx, signature)
		if err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("Event list cache read failed: %v", err))
		} else if ok {
			return cached, nil
		}
	}

	events, total, err := s.DB.ListEvents(ctx, f, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	if events == nil {
		events = []*models.Event{}
	}
	result := &models.EventPage{Events: events, Total: total, Page: page, Limit: limit}

	if s.Cache != nil {
		if err := s.Cache.SetList(ctx, signature, result); err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("Event list cache write failed: %v", err))
		}
	}
	return result, nil
}

// filterSignature is a canonical encoding of the filter used as cache key input.
func filterSignature(f models.EventFilter) string {
	v := url.Values{}
	v.Set("category", f.Category)
	v.Set("q", f.Query)
	v.Set("location", f.Location)
	if f.DateFrom != nil {
		v.Set("dateFrom", f.DateFrom.UTC().Format(time.RFC3339))
	}
	if f.DateTo != nil {
		v.Set("dateTo", f.DateTo.UTC().Format(time.RFC3339))
	}
	if f.PriceMin != nil {
		v.Set("priceMin", f.PriceMin.String())
	}
	if f.PriceMax != nil {
		v.Set("priceMax", f.PriceMax.String())
	}
	v.Set("studentOnly", strconv.FormatBool(f.StudentOnly))
	v.Set("free", strconv.FormatBool(f.Free))
	v.Set("page", strconv.Itoa(f.Page))
	v.Set("limit", strconv.Itoa(f.Limit))
	return v.Encode()
}

// GetBySlug returns a public event. Non-aktif events are only visible to
// their organizer and admins. The view counter moves at most once per
// viewer per cooldown window.
func (s *EventService) GetBySlug(ctx context.Context, caller *models.Caller, slug, viewerKey string) (*models.Event, error) {
	event, err := s.DB.GetEventBySlug(ctx, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", slug, err)
	}

	if event.Status != models.EventAktif {
		if caller == nil || (!caller.IsAdmin() && caller.UserID != event.OrganizerID) {
			return nil, ErrEventNotFound
		}
	}

	if viewerKey != "" {
		s.countView(ctx, event, viewerKey)
	}
	return event, nil
}

func (s *EventService) countView(ctx context.Context, event *models.Event, viewerKey string) {
	if s.Cache != nil {
		first, err := s.Cache.MarkViewed(ctx, event.ID, viewerKey)
		if err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("View cooldown check failed for %s: %v", event.ID, err))
			return
		}
		if !first {
			return
		}
	}
	if err := s.DB.IncrementViewCount(ctx, event.ID); err != nil {
		s.Logger.Warn("EVENT", fmt.Sprintf("Failed to increment view count for %s: %v", event.ID, err))
		return
	}
	event.ViewCount++
}

func (s *EventService) invalidate(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.InvalidateLists(ctx); err != nil {
		s.Logger.Warn("CACHE", fmt.Sprintf("Failed to invalidate event lists: %v", err))
	}
}
