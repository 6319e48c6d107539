package skald

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Type to represent an ID of a record
type ResourceID string

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ResourceMeta is the part of every stored record owned by the store:
// identity and timestamps. IDs are assigned on first insert.
type ResourceMeta struct {
	ID        ResourceID `gorm:"primaryKey" json:"id" yaml:"id" xml:"id"`
	CreatedAt time.Time  `json:"createdAt" yaml:"createdAt" xml:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" yaml:"updatedAt" xml:"updatedAt"`
}

func (meta *ResourceMeta) BeforeCreate(tx *gorm.DB) error {
	if meta.ID == "" {
		meta.ID = ResourceID(uuid.NewString())
	}
	return nil
}

// StringList is a []string persisted as a JSON-encoded column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	return string(data), err
}

func (l *StringList) Scan(value any) error {
	switch data := value.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		return json.Unmarshal([]byte(data), l)
	case []byte:
		return json.Unmarshal(data, l)
	default:
		return fmt.Errorf("unexpected column type %T for a string list", value)
	}
}

type Account struct {
	ResourceMeta `json:",inline" yaml:",inline"`

	Name  string `json:"name" yaml:"name" xml:"name"`
	Email string `gorm:"uniqueIndex" json:"email" yaml:"email" xml:"email"`

	// Bcrypt hash, never serialized
	Password string `json:"-" yaml:"-" xml:"-"`

	Role     string `json:"role" yaml:"role" xml:"role"`
	Age      int    `json:"age,omitempty" yaml:"age,omitempty" xml:"age,omitempty"`
	IsActive bool   `json:"isActive" yaml:"isActive" xml:"isActive"`
}

type Post struct {
	ResourceMeta `json:",inline" yaml:",inline"`

	Title     string     `json:"title" yaml:"title" xml:"title"`
	Content   string     `json:"content" yaml:"content" xml:"content"`
	AuthorID  ResourceID `gorm:"index" json:"authorId" yaml:"authorId" xml:"authorId"`
	Published bool       `json:"published" yaml:"published" xml:"published"`
	Tags      StringList `json:"tags" yaml:"tags" xml:"tags"`
	Views     int        `json:"views" yaml:"views" xml:"views"`
}

type Lead struct {
	ResourceMeta `json:",inline" yaml:",inline"`

	Title       string     `json:"title" yaml:"title" xml:"title"`
	FirstName   string     `json:"firstName" yaml:"firstName" xml:"firstName"`
	LastName    string     `json:"lastName,omitempty" yaml:"lastName,omitempty" xml:"lastName,omitempty"`
	Email       string     `gorm:"uniqueIndex" json:"email" yaml:"email" xml:"email"`
	Company     StringList `json:"company" yaml:"company" xml:"company"`
	Phone       string     `json:"phone,omitempty" yaml:"phone,omitempty" xml:"phone,omitempty"`
	Status      string     `json:"status,omitempty" yaml:"status,omitempty" xml:"status,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty" xml:"description,omitempty"`
	Segment     StringList `json:"segment" yaml:"segment" xml:"segment"`
	Assigned    StringList `json:"assigned" yaml:"assigned" xml:"assigned"`
	IsActive    bool       `json:"isActive" yaml:"isActive" xml:"isActive"`
}

//------------------------------
// Mutation inputs
//------------------------------

type CreateAccountRequest struct {
	Name     string `form:"name" json:"name" yaml:"name" binding:"required"`
	Email    string `form:"email" json:"email" yaml:"email" binding:"required"`
	Password string `form:"password" json:"password" yaml:"password" binding:"required"`
	Role     string `form:"role" json:"role,omitempty" yaml:"role,omitempty"`
	Age      int    `form:"age" json:"age,omitempty" yaml:"age,omitempty"`
}

// UpdateAccountRequest is a partial patch: nil fields are left untouched.
type UpdateAccountRequest struct {
	Name     *string `form:"name" json:"name,omitempty" yaml:"name,omitempty"`
	Email    *string `form:"email" json:"email,omitempty" yaml:"email,omitempty"`
	Age      *int    `form:"age" json:"age,omitempty" yaml:"age,omitempty"`
	IsActive *bool   `form:"isActive" json:"isActive,omitempty" yaml:"isActive,omitempty"`
}

type LoginRequest struct {
	Email    string `form:"email" json:"email" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type CreatePostRequest struct {
	Title     string     `form:"title" json:"title" yaml:"title" binding:"required"`
	Content   string     `form:"content" json:"content" yaml:"content" binding:"required"`
	AuthorID  ResourceID `form:"authorId" json:"authorId" yaml:"authorId" binding:"required"`
	Published *bool      `form:"published" json:"published,omitempty" yaml:"published,omitempty"`
	Tags      StringList `form:"tags" json:"tags,omitempty" yaml:"tags,omitempty"`
}

type UpdatePostRequest struct {
	Title     *string     `form:"title" json:"title,omitempty" yaml:"title,omitempty"`
	Content   *string     `form:"content" json:"content,omitempty" yaml:"content,omitempty"`
	Published *bool       `form:"published" json:"published,omitempty" yaml:"published,omitempty"`
	Tags      *StringList `form:"tags" json:"tags,omitempty" yaml:"tags,omitempty"`
}

type CreateLeadRequest struct {
	Title       string     `form:"title" json:"title" yaml:"title" binding:"required"`
	FirstName   string     `form:"firstName" json:"firstName" yaml:"firstName" binding:"required"`
	LastName    string     `form:"lastName" json:"lastName,omitempty" yaml:"lastName,omitempty"`
	Email       string     `form:"email" json:"email" yaml:"email" binding:"required"`
	Company     StringList `form:"company" json:"company,omitempty" yaml:"company,omitempty"`
	Phone       string     `form:"phone" json:"phone,omitempty" yaml:"phone,omitempty"`
	Status      string     `form:"status" json:"status,omitempty" yaml:"status,omitempty"`
	Description string     `form:"description" json:"description,omitempty" yaml:"description,omitempty"`
	Segment     StringList `form:"segment" json:"segment,omitempty" yaml:"segment,omitempty"`
	Assigned    StringList `form:"assigned" json:"assigned,omitempty" yaml:"assigned,omitempty"`
}

type UpdateLeadRequest struct {
	Title       *string     `form:"title" json:"title,omitempty" yaml:"title,omitempty"`
	FirstName   *string     `form:"firstName" json:"firstName,omitempty" yaml:"firstName,omitempty"`
	LastName    *string     `form:"lastName" json:"lastName,omitempty" yaml:"lastName,omitempty"`
	Email       *string     `form:"email" json:"email,omitempty" yaml:"email,omitempty"`
	Phone       *string     `form:"phone" json:"phone,omitempty" yaml:"phone,omitempty"`
	Status      *string     `form:"status" json:"status,omitempty" yaml:"status,omitempty"`
	Description *string     `form:"description" json:"description,omitempty" yaml:"description,omitempty"`
	Segment     *StringList `form:"segment" json:"segment,omitempty" yaml:"segment,omitempty"`
	Assigned    *StringList `form:"assigned" json:"assigned,omitempty" yaml:"assigned,omitempty"`
	IsActive    *bool       `form:"isActive" json:"isActive,omitempty" yaml:"isActive,omitempty"`
}
