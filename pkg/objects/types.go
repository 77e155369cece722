// Package objects holds the metadata object model shared by reports, cubes,
// folders and events, and the generic operations the server exposes for any
// object through /api/objects.
package objects

import (
	"context"
	"fmt"
	"strconv"
)

// ObjectType is the metadata object type (EnumDSSXMLObjectTypes).
type ObjectType int

// Object types used by this package and its callers.
const (
	TypeFilter        ObjectType = 1
	TypeReport        ObjectType = 3
	TypeMetric        ObjectType = 4
	TypeFolder        ObjectType = 8
	TypeAttribute     ObjectType = 12
	TypeShortcut      ObjectType = 18
	TypeUser          ObjectType = 34
	TypeScheduleEvent ObjectType = 39
	TypeDocument      ObjectType = 55
)

var typeNames = map[ObjectType]string{
	TypeFilter:        "filter",
	TypeReport:        "report",
	TypeMetric:        "metric",
	TypeFolder:        "folder",
	TypeAttribute:     "attribute",
	TypeShortcut:      "shortcut",
	TypeUser:          "user",
	TypeScheduleEvent: "schedule_event",
	TypeDocument:      "document",
}

// String implements fmt.Stringer.
func (t ObjectType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "type_" + strconv.Itoa(int(t))
}

// Subtypes of TypeReport that identify cubes.
const (
	SubtypeOLAPCube  = 776
	SubtypeSuperCube = 779
)

// ObjectRef identifies an object.
type ObjectRef struct {
	ID   string     `json:"id"`
	Name string     `json:"name,omitempty"`
	Type ObjectType `json:"type,omitempty"`
}

// String implements fmt.Stringer.
func (r ObjectRef) String() string {
	if r.Name != "" {
		return fmt.Sprintf("%s %q (%s)", r.Type, r.Name, r.ID)
	}
	return fmt.Sprintf("%s %s", r.Type, r.ID)
}

// Owner is the user that owns an object.
type Owner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CertifiedInfo is the certification status of reports and documents.
type CertifiedInfo struct {
	Certified     bool   `json:"certified"`
	DateCertified string `json:"dateCertified,omitempty"`
	Certifier     *Owner `json:"certifier,omitempty"`
}

// Info is the metadata returned by GET /api/objects/{id}.
type Info struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Type          ObjectType     `json:"type"`
	Subtype       int            `json:"subtype,omitempty"`
	ExtType       int            `json:"extType,omitempty"`
	DateCreated   string         `json:"dateCreated,omitempty"`
	DateModified  string         `json:"dateModified,omitempty"`
	Version       string         `json:"version,omitempty"`
	Owner         *Owner         `json:"owner,omitempty"`
	Hidden        bool           `json:"hidden,omitempty"`
	Ancestors     []ObjectRef    `json:"ancestors,omitempty"`
	CertifiedInfo *CertifiedInfo `json:"certifiedInfo,omitempty"`
	ACG           int            `json:"acg,omitempty"`
}

// Ref returns the reference to the object.
func (i *Info) Ref() ObjectRef {
	return ObjectRef{ID: i.ID, Name: i.Name, Type: i.Type}
}

// Path returns the folder path of the object, e.g. "/Shared Reports/Sales".
func (i *Info) Path() string {
	path := ""
	for _, a := range i.Ancestors {
		path += "/" + a.Name
	}
	return path + "/" + i.Name
}

// Changes holds the properties Alter can update. Nil fields are left as is.
type Changes struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Hidden      *bool   `json:"hidden,omitempty"`
	FolderID    *string `json:"folderId,omitempty"`
}

// IsEmpty reports whether no property is set.
func (c Changes) IsEmpty() bool {
	return c.Name == nil && c.Description == nil && c.Hidden == nil && c.FolderID == nil
}

// Deletable is an object that can be removed from the metadata.
type Deletable interface {
	Delete(ctx context.Context) error
}

// Alterable is an object whose properties can be changed.
type Alterable interface {
	Alter(ctx context.Context, changes Changes) error
}

// Certifiable is an object that can be certified or decertified.
type Certifiable interface {
	Certify(ctx context.Context, certified bool) error
}

// String returns a pointer to s, for Changes fields.
func String(s string) *string { return &s }

// Bool returns a pointer to b, for Changes fields.
func Bool(b bool) *bool { return &b }
