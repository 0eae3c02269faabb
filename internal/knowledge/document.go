// Package knowledge loads the YAML knowledge document and splits it into
// overlapping chunks for embedding and retrieval.
package knowledge

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind classifies a section of the knowledge document. Retrieval results
// carry the kind so prompts can label what they cite.
type Kind string

const (
	KindFact    Kind = "fact"
	KindService Kind = "service"
	KindProcess Kind = "process"
	KindOther   Kind = "other"
)

// Document is the parsed knowledge base: a company profile, its service
// catalogue, an engagement process, and contact details.
type Document struct {
	Company  Company   `yaml:"company"`
	Services []Service `yaml:"services"`
	Process  []Step    `yaml:"process"`
	Contact  Contact   `yaml:"contact"`
}

// Company holds the profile section.
type Company struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Mission     string `yaml:"mission"`
}

// Service is one entry of the service catalogue.
type Service struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Offerings   []string `yaml:"offerings"`
}

// Step is one stage of the engagement process.
type Step struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Contact holds the contact section.
type Contact struct {
	Email   string `yaml:"email"`
	Phone   string `yaml:"phone"`
	Website string `yaml:"website"`
	Address string `yaml:"address"`
}

// Section is a flattened unit of text ready for chunking. Chunks never span
// section boundaries.
type Section struct {
	// ID identifies the section within the document (e.g. "company",
	// "service/ai-consulting", "process/2-discovery").
	ID string

	Kind Kind

	// Text is the prose rendering of the section.
	Text string
}

// Load reads and parses the knowledge document at path.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open %q: %w", path, err)
	}
	defer f.Close()

	doc, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("knowledge: parse %q: %w", path, err)
	}
	return doc, nil
}

// LoadFromReader parses a knowledge document from r.
func LoadFromReader(r io.Reader) (*Document, error) {
	doc := &Document{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *Document) validate() error {
	var errs []error
	if d.Company.Name == "" {
		errs = append(errs, errors.New("company.name is required"))
	}
	for i, s := range d.Services {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("services[%d].name is required", i))
		}
	}
	for i, s := range d.Process {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("process[%d].name is required", i))
		}
	}
	return errors.Join(errs...)
}

// Sections flattens the document into chunkable units in document order:
// company profile, one section per service, one per process step, then
// contact details.
func (d *Document) Sections() []Section {
	var out []Section

	var company strings.Builder
	fmt.Fprintf(&company, "%s: %s", d.Company.Name, d.Company.Description)
	if d.Company.Mission != "" {
		fmt.Fprintf(&company, " Mission: %s", d.Company.Mission)
	}
	out = append(out, Section{ID: "company", Kind: KindFact, Text: company.String()})

	for _, svc := range d.Services {
		var b strings.Builder
		fmt.Fprintf(&b, "%s: %s", svc.Name, svc.Description)
		if len(svc.Offerings) > 0 {
			fmt.Fprintf(&b, " Offerings: %s.", strings.Join(svc.Offerings, ", "))
		}
		out = append(out, Section{
			ID:   "service/" + slug(svc.Name),
			Kind: KindService,
			Text: b.String(),
		})
	}

	for i, step := range d.Process {
		out = append(out, Section{
			ID:   fmt.Sprintf("process/%d-%s", i+1, slug(step.Name)),
			Kind: KindProcess,
			Text: fmt.Sprintf("Step %d, %s: %s", i+1, step.Name, step.Description),
		})
	}

	if c := d.contactText(); c != "" {
		out = append(out, Section{ID: "contact", Kind: KindOther, Text: c})
	}
	return out
}

func (d *Document) contactText() string {
	var parts []string
	if d.Contact.Email != "" {
		parts = append(parts, "Email: "+d.Contact.Email)
	}
	if d.Contact.Phone != "" {
		parts = append(parts, "Phone: "+d.Contact.Phone)
	}
	if d.Contact.Website != "" {
		parts = append(parts, "Website: "+d.Contact.Website)
	}
	if d.Contact.Address != "" {
		parts = append(parts, "Address: "+d.Contact.Address)
	}
	if len(parts) == 0 {
		return ""
	}
	return "Contact " + d.Company.Name + ". " + strings.Join(parts, ". ") + "."
}

// slug lowercases a name and replaces runs of non-alphanumerics with a
// single hyphen.
func slug(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
