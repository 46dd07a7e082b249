package idgen

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	TypeUUIDv4 = "uuidv4"
	TypeUUIDv7 = "uuidv7"
	TypeNanoid = "nanoid"
)

var (
	mu                    sync.RWMutex
	registrationGenerator = &IDGenerator{idType: TypeUUIDv4}
)

// IDGenerator produces ids of a single type with an optional prefix.
type IDGenerator struct {
	idType string
	prefix string
}

func NewIDGenerator(idType, prefix string) (*IDGenerator, error) {
	switch idType {
	case "":
		idType = TypeUUIDv4
	case TypeUUIDv4, TypeUUIDv7, TypeNanoid:
	default:
		return nil, fmt.Errorf("unsupported id type %q", idType)
	}
	return &IDGenerator{idType: idType, prefix: prefix}, nil
}

func (g *IDGenerator) Generate() string {
	id := g.generateRaw()
	if g.prefix == "" {
		return id
	}
	return g.prefix + "_" + id
}

func (g *IDGenerator) generateRaw() string {
	switch g.idType {
	case TypeUUIDv7:
		if id, err := uuid.NewV7(); err == nil {
			return id.String()
		}
	case TypeNanoid:
		if id, err := gonanoid.New(); err == nil {
			return id
		}
	}
	return uuid.New().String()
}

// IDGenConfig selects the id type and prefixes for generated ids.
type IDGenConfig struct {
	Type               string
	RegistrationPrefix string
}

// Configure replaces the package generators. Call it once at startup.
func Configure(cfg IDGenConfig) error {
	gen, err := NewIDGenerator(cfg.Type, cfg.RegistrationPrefix)
	if err != nil {
		return fmt.Errorf("failed to configure registration id generator: %w", err)
	}

	mu.Lock()
	registrationGenerator = gen
	mu.Unlock()
	return nil
}

// Registration generates an id for a new service registration.
func Registration() string {
	mu.RLock()
	gen := registrationGenerator
	mu.RUnlock()
	return gen.Generate()
}

// MessageID generates an id for a bus message. Message ids are always
// uuid v4 so replies can be correlated regardless of the configured type.
func MessageID() string {
	return uuid.New().String()
}
