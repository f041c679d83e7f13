package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zombor/kassir/internal/draft"
	"github.com/zombor/kassir/internal/kassa"
	"github.com/zombor/kassir/internal/store"
)

var (
	// ErrCredentialsRequired is returned when shops are loaded without a login and password
	ErrCredentialsRequired = errors.New("Введите логин и пароль API Екомкасса")

	// ErrInvalidCode is returned for an unknown tax scheme or VAT code
	ErrInvalidCode = errors.New("invalid fiscal code")

	// ErrUnknownShop is returned when selecting a shop that was not loaded
	ErrUnknownShop = errors.New("unknown shop")
)

// Shop is a store loaded from the fiscal profile
type Shop struct {
	StoreID      string `json:"storeId"`
	StoreName    string `json:"storeName"`
	StoreAddress string `json:"storeAddress"`
}

// Integration holds a user's fiscal integration settings
type Integration struct {
	GroupCode      string          `json:"group_code"`
	INN            string          `json:"inn"`
	SNO            draft.TaxScheme `json:"sno"`
	DefaultVAT     draft.VATType   `json:"default_vat"`
	CompanyEmail   string          `json:"company_email"`
	PaymentAddress string          `json:"payment_address"`
	Login          string          `json:"ecomkassa_login"`
	Password       string          `json:"ecomkassa_password,omitempty"`
	AvailableShops []Shop          `json:"available_shops"`
}

// Public is the integration as returned to clients, without the API password
type Public struct {
	Integration
	HasPassword bool `json:"has_password"`
}

// Public drops the password and reports whether one is stored
func (i Integration) Public() Public {
	out := Public{Integration: i, HasPassword: i.Password != ""}
	out.Password = ""
	return out
}

// Defaults returns the settings a new user starts with
func Defaults() Integration {
	return Integration{
		SNO:            draft.DefaultTaxScheme,
		DefaultVAT:     draft.VATNone,
		AvailableShops: []Shop{},
	}
}

// Configured reports whether any integration field was filled in
func (i Integration) Configured() bool {
	return i.Login != "" || i.Password != "" || i.GroupCode != "" || i.INN != "" || i.CompanyEmail != ""
}

func (i Integration) withDefaults() Integration {
	if i.SNO == "" {
		i.SNO = draft.DefaultTaxScheme
	}
	if i.DefaultVAT == "" {
		i.DefaultVAT = draft.VATNone
	}
	if i.AvailableShops == nil {
		i.AvailableShops = []Shop{}
	}
	return i
}

// ProfileFetcher loads the fiscal profile for a login
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, login, password string) (*kassa.Profile, error)
}

// ActiveProvider names the AI provider the receipt API should use
type ActiveProvider interface {
	ActiveID() string
}

// Service manages per-user integration settings
type Service struct {
	kv       store.KV
	profiles ProfileFetcher
	provider ActiveProvider
	mu       sync.Mutex
}

// NewService creates a settings service
func NewService(kv store.KV, profiles ProfileFetcher, provider ActiveProvider) *Service {
	return &Service{
		kv:       kv,
		profiles: profiles,
		provider: provider,
	}
}

// Get returns the user's settings, filling defaults for unset codes
func (s *Service) Get(userID string) Integration {
	return store.Load(s.kv, store.UserKey(userID, store.KeySettings), Defaults()).withDefaults()
}

// Configured reports whether the user filled in any integration settings
func (s *Service) Configured(userID string) bool {
	return s.Get(userID).Configured()
}

// Update replaces the user's settings after checking the fiscal codes.
// An empty password keeps the stored one.
func (s *Service) Update(userID string, in Integration) (Integration, error) {
	in = in.withDefaults()
	if !in.SNO.Valid() {
		return Integration{}, fmt.Errorf("%w: sno %q", ErrInvalidCode, in.SNO)
	}
	if !in.DefaultVAT.Valid() {
		return Integration{}, fmt.Errorf("%w: vat %q", ErrInvalidCode, in.DefaultVAT)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := store.UserKey(userID, store.KeySettings)
	if in.Password == "" {
		in.Password = store.Load(s.kv, key, Defaults()).Password
	}
	store.Save(s.kv, key, in)
	return in, nil
}

// LoadShops fetches the firm profile with the stored credentials and fills
// the INN, tax scheme and shop list from it
func (s *Service) LoadShops(ctx context.Context, userID string) (Integration, error) {
	current := s.Get(userID)
	if current.Login == "" || current.Password == "" {
		return Integration{}, ErrCredentialsRequired
	}

	profile, err := s.profiles.FetchProfile(ctx, current.Login, current.Password)
	if err != nil {
		return Integration{}, fmt.Errorf("loading profile: %w", err)
	}
	if profile.ErrorCode != 0 {
		msg := profile.Error
		if msg == "" {
			msg = "Неизвестная ошибка"
		}
		return Integration{}, fmt.Errorf("API Екомкасса: %s", msg)
	}

	shops := make([]Shop, 0, len(profile.Payload.Stores))
	for _, st := range profile.Payload.Stores {
		name := st.StoreName
		if name == "" {
			name = "Без названия"
		}
		shops = append(shops, Shop{StoreID: st.StoreID, StoreName: name, StoreAddress: st.StoreAddress})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := s.Get(userID)
	updated.INN = profile.Payload.TaxIdentity
	updated.SNO = draft.TaxScheme(profile.Payload.TaxVariant)
	if updated.SNO == "" {
		updated.SNO = draft.DefaultTaxScheme
	}
	updated.AvailableShops = shops
	store.Save(s.kv, store.UserKey(userID, store.KeySettings), updated)

	slog.Info("Loaded shops", "user", userID, "count", len(shops))
	return updated, nil
}

// SelectShop makes a loaded shop the receipt's group code and payment address
func (s *Service) SelectShop(userID, storeID string) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.Get(userID)
	for _, shop := range current.AvailableShops {
		if shop.StoreID == storeID {
			current.GroupCode = shop.StoreID
			current.PaymentAddress = shop.StoreAddress
			store.Save(s.kv, store.UserKey(userID, store.KeySettings), current)
			return current, nil
		}
	}
	return Integration{}, fmt.Errorf("%w: %s", ErrUnknownShop, storeID)
}

// Context builds the configuration object sent with receipt API calls
func (s *Service) Context(userID, contextMessage string) kassa.Settings {
	in := s.Get(userID)
	out := kassa.Settings{
		GroupCode:      in.GroupCode,
		INN:            in.INN,
		SNO:            string(in.SNO),
		DefaultVAT:     string(in.DefaultVAT),
		CompanyEmail:   in.CompanyEmail,
		PaymentAddress: in.PaymentAddress,
		Login:          in.Login,
		Password:       in.Password,
		ContextMessage: contextMessage,
	}
	if s.provider != nil {
		out.ActiveAIProvider = s.provider.ActiveID()
	}
	return out
}
