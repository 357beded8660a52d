package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Visibility governs who may resolve a preset through the gateway.
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityPrivate    Visibility = "private"
	VisibilityInviteOnly Visibility = "invite_only"
)

// PresetStatus is the lifecycle state of a preset. Only active presets expose
// capabilities; disabled and archived presets answer every aggregate query
// with an empty result.
type PresetStatus string

const (
	PresetActive   PresetStatus = "active"
	PresetDisabled PresetStatus = "disabled"
	PresetArchived PresetStatus = "archived"
)

const (
	MaxServerBindings    = 20
	MaxAllowedToolNames  = 100
	MaxToolNameLength    = 100
	MaxMetadataKeyLength = 100
	MaxPresetNameLength  = 100
	MaxDescriptionLength = 500
	MinSlugLength        = 3
	MaxSlugLength        = 50
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)

// ServerBinding is one backend connection's participation in a preset.
// An empty AllowedToolNames list allows every tool from that backend.
type ServerBinding struct {
	ID               string
	BackendServerID  string
	Enabled          bool
	AllowedToolNames []string
}

func (b ServerBinding) clone() ServerBinding {
	out := b
	if len(b.AllowedToolNames) > 0 {
		out.AllowedToolNames = append([]string(nil), b.AllowedToolNames...)
	} else {
		out.AllowedToolNames = nil
	}
	return out
}

// AllowsTool reports whether the binding exposes the named origin tool.
func (b ServerBinding) AllowsTool(name string) bool {
	if len(b.AllowedToolNames) == 0 {
		return true
	}
	for _, allowed := range b.AllowedToolNames {
		if allowed == name {
			return true
		}
	}
	return false
}

// Preset is a named, owned filtering policy selecting which backend
// connections and which of their tools are exposed as one logical gateway.
type Preset struct {
	id          string
	ownerID     string
	slug        string
	name        string
	description string
	visibility  Visibility
	status      PresetStatus
	metadata    map[string]string
	servers     []ServerBinding
	createdAt   time.Time
	updatedAt   time.Time
}

// PresetParams carries the inputs for NewPreset.
type PresetParams struct {
	OwnerID     string
	Slug        string
	Name        string
	Description string
	Visibility  Visibility
	Metadata    map[string]string
	Servers     []ServerBinding
}

// NewPreset validates params and returns a new active preset.
func NewPreset(params PresetParams) (*Preset, error) {
	const op = "preset.new"
	if params.OwnerID == "" {
		return nil, ValidationError(op, "ownerId", "owner id is required")
	}
	if err := validateSlug(op, params.Slug); err != nil {
		return nil, err
	}
	if err := validateName(op, params.Name); err != nil {
		return nil, err
	}
	if err := validateDescription(op, params.Description); err != nil {
		return nil, err
	}
	visibility := params.Visibility
	if visibility == "" {
		visibility = VisibilityPrivate
	}
	if err := validateVisibility(op, visibility); err != nil {
		return nil, err
	}
	if err := validateMetadata(op, params.Metadata); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	preset := &Preset{
		id:          uuid.NewString(),
		ownerID:     params.OwnerID,
		slug:        params.Slug,
		name:        params.Name,
		description: params.Description,
		visibility:  visibility,
		status:      PresetActive,
		metadata:    cloneMetadata(params.Metadata),
		createdAt:   now,
		updatedAt:   now,
	}
	for _, binding := range params.Servers {
		if err := preset.AddServer(binding); err != nil {
			return nil, err
		}
	}
	preset.updatedAt = now
	return preset, nil
}

// PresetRecord is the persisted shape of a preset. Restoring from a record
// trusts stored data; invariants are enforced again on the next mutation.
type PresetRecord struct {
	ID          string
	OwnerID     string
	Slug        string
	Name        string
	Description string
	Visibility  Visibility
	Status      PresetStatus
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PresetFromRecord restores a preset from persistence without re-running
// creation-time validation.
func PresetFromRecord(record PresetRecord, servers []ServerBinding) *Preset {
	preset := &Preset{
		id:          record.ID,
		ownerID:     record.OwnerID,
		slug:        record.Slug,
		name:        record.Name,
		description: record.Description,
		visibility:  record.Visibility,
		status:      record.Status,
		metadata:    cloneMetadata(record.Metadata),
		createdAt:   record.CreatedAt,
		updatedAt:   record.UpdatedAt,
	}
	for _, binding := range servers {
		preset.servers = append(preset.servers, binding.clone())
	}
	return preset
}

// Record returns the persistable shape of the preset.
func (p *Preset) Record() PresetRecord {
	return PresetRecord{
		ID:          p.id,
		OwnerID:     p.ownerID,
		Slug:        p.slug,
		Name:        p.name,
		Description: p.description,
		Visibility:  p.visibility,
		Status:      p.status,
		Metadata:    cloneMetadata(p.metadata),
		CreatedAt:   p.createdAt,
		UpdatedAt:   p.updatedAt,
	}
}

func (p *Preset) ID() string             { return p.id }
func (p *Preset) OwnerID() string        { return p.ownerID }
func (p *Preset) Slug() string           { return p.slug }
func (p *Preset) Name() string           { return p.name }
func (p *Preset) Description() string    { return p.description }
func (p *Preset) Visibility() Visibility { return p.visibility }
func (p *Preset) Status() PresetStatus   { return p.status }
func (p *Preset) CreatedAt() time.Time   { return p.createdAt }
func (p *Preset) UpdatedAt() time.Time   { return p.updatedAt }

// IsActive reports whether the preset currently yields capabilities.
func (p *Preset) IsActive() bool { return p.status == PresetActive }

// Metadata returns a copy of the metadata map.
func (p *Preset) Metadata() map[string]string {
	return cloneMetadata(p.metadata)
}

// Servers returns a copy of the bindings in their configured order.
func (p *Preset) Servers() []ServerBinding {
	out := make([]ServerBinding, 0, len(p.servers))
	for _, binding := range p.servers {
		out = append(out, binding.clone())
	}
	return out
}

// EnabledServers returns copies of enabled bindings in configured order.
func (p *Preset) EnabledServers() []ServerBinding {
	out := make([]ServerBinding, 0, len(p.servers))
	for _, binding := range p.servers {
		if binding.Enabled {
			out = append(out, binding.clone())
		}
	}
	return out
}

// AccessGranter answers invite-only access checks. The grant list lives
// outside this core.
type AccessGranter interface {
	HasGrant(ownerID, presetID, callerID string) bool
}

// CanBeAccessedBy reports whether callerID may see this preset. Invite-only
// presets consult the granter when one is supplied.
func (p *Preset) CanBeAccessedBy(callerID string, granter AccessGranter) bool {
	switch p.visibility {
	case VisibilityPublic:
		return true
	case VisibilityPrivate:
		return callerID == p.ownerID
	case VisibilityInviteOnly:
		if callerID == p.ownerID {
			return true
		}
		if granter != nil {
			return granter.HasGrant(p.ownerID, p.id, callerID)
		}
		return false
	default:
		return false
	}
}

// AddServer appends a binding. The call fails without mutating the preset if
// the binding limit, per-binding tool-name limits, or the unique-backend
// constraint would be violated.
func (p *Preset) AddServer(binding ServerBinding) error {
	const op = "preset.addServer"
	if len(p.servers) >= MaxServerBindings {
		return ValidationError(op, "servers", "preset cannot bind more than 20 backend servers")
	}
	if binding.BackendServerID == "" {
		return ValidationError(op, "backendServerId", "backend server id is required")
	}
	for _, existing := range p.servers {
		if existing.BackendServerID == binding.BackendServerID {
			return ValidationError(op, "backendServerId", "backend server is already bound")
		}
	}
	if len(binding.AllowedToolNames) > MaxAllowedToolNames {
		return ValidationError(op, "allowedToolNames", "at most 100 allowed tool names per binding")
	}
	for _, name := range binding.AllowedToolNames {
		if name == "" || len(name) > MaxToolNameLength {
			return ValidationError(op, "allowedToolNames", "tool names must be 1-100 characters")
		}
	}
	stored := binding.clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	p.servers = append(p.servers, stored)
	p.touch()
	return nil
}

// RemoveServer deletes the binding with the given id.
func (p *Preset) RemoveServer(bindingID string) error {
	for i, binding := range p.servers {
		if binding.ID == bindingID {
			p.servers = append(p.servers[:i], p.servers[i+1:]...)
			p.touch()
			return nil
		}
	}
	return Wrap(CodeNotFound, "preset.removeServer", ErrBindingNotFound)
}

func (p *Preset) UpdateName(name string) error {
	if err := validateName("preset.updateName", name); err != nil {
		return err
	}
	p.name = name
	p.touch()
	return nil
}

func (p *Preset) UpdateDescription(description string) error {
	if err := validateDescription("preset.updateDescription", description); err != nil {
		return err
	}
	p.description = description
	p.touch()
	return nil
}

func (p *Preset) UpdateVisibility(visibility Visibility) error {
	if err := validateVisibility("preset.updateVisibility", visibility); err != nil {
		return err
	}
	p.visibility = visibility
	p.touch()
	return nil
}

func (p *Preset) UpdateMetadata(metadata map[string]string) error {
	if err := validateMetadata("preset.updateMetadata", metadata); err != nil {
		return err
	}
	p.metadata = cloneMetadata(metadata)
	p.touch()
	return nil
}

func (p *Preset) Enable() {
	p.status = PresetActive
	p.touch()
}

func (p *Preset) Disable() {
	p.status = PresetDisabled
	p.touch()
}

func (p *Preset) Archive() {
	p.status = PresetArchived
	p.touch()
}

func (p *Preset) touch() {
	p.updatedAt = time.Now().UTC()
}

func validateSlug(op, slug string) error {
	if len(slug) < MinSlugLength || len(slug) > MaxSlugLength {
		return ValidationError(op, "slug", "slug must be 3-50 characters")
	}
	if !slugPattern.MatchString(slug) {
		return ValidationError(op, "slug", "slug must be lowercase letters, digits, or hyphens and may not start or end with a hyphen")
	}
	return nil
}

func validateName(op, name string) error {
	if name == "" || len(name) > MaxPresetNameLength {
		return ValidationError(op, "name", "name must be 1-100 characters")
	}
	return nil
}

func validateDescription(op, description string) error {
	if len(description) > MaxDescriptionLength {
		return ValidationError(op, "description", "description must be at most 500 characters")
	}
	return nil
}

func validateVisibility(op string, visibility Visibility) error {
	switch visibility {
	case VisibilityPublic, VisibilityPrivate, VisibilityInviteOnly:
		return nil
	default:
		return ValidationError(op, "visibility", "visibility must be public, private, or invite_only")
	}
}

func validateMetadata(op string, metadata map[string]string) error {
	for key := range metadata {
		if key == "" || len(key) > MaxMetadataKeyLength {
			return ValidationError(op, "metadata", "metadata keys must be 1-100 characters")
		}
	}
	return nil
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(src))
	for key, value := range src {
		out[key] = value
	}
	return out
}
