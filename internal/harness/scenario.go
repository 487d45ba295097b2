package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stockbook/internal/money"
)

// Scenario is a scripted sequence of inventory operations run against a
// fresh store, followed by checks on the resulting state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Setup seeds the catalog before the flow runs. Setup is assumed to
	// succeed; a failure aborts the run.
	Setup Setup `yaml:"setup"`

	// Flow is the list of operations under test, each with an optional
	// expected outcome.
	Flow []FlowStep `yaml:"flow"`

	// Assertions check the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup is the starting catalog.
type Setup struct {
	Categories []string      `yaml:"categories,omitempty"`
	Products   []ProductSeed `yaml:"products,omitempty"`
}

// ProductSeed is a product created during setup. Key is how flow steps and
// assertions refer to it.
type ProductSeed struct {
	Key      string `yaml:"key"`
	Name     string `yaml:"name"`
	Category string `yaml:"category,omitempty"`
	Stock    int64  `yaml:"stock"`

	// Price is a decimal string so YAML never rounds it through a float.
	Price string `yaml:"price"`
}

// Flow actions.
const (
	ActionRecordSale    = "record_sale"
	ActionDeleteSale    = "delete_sale"
	ActionDeleteProduct = "delete_product"
	ActionSetStock      = "set_stock"
	ActionRenameProduct = "rename_product"
)

// FlowStep is one operation. Which fields apply depends on Action.
type FlowStep struct {
	Action string `yaml:"action"`

	// Ref names a recorded sale so a later delete_sale can target it.
	Ref string `yaml:"ref,omitempty"`

	Sale    *SaleArgs `yaml:"sale,omitempty"`
	Product string    `yaml:"product,omitempty"`
	Stock   int64     `yaml:"stock,omitempty"`
	Name    string    `yaml:"name,omitempty"`

	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// SaleArgs describes a sale to record.
type SaleArgs struct {
	Customer    string     `yaml:"customer,omitempty"`
	PaymentType string     `yaml:"payment_type,omitempty"`
	Items       []ItemArgs `yaml:"items"`
}

// ItemArgs is one requested line. UnitPrice defaults to the product price.
type ItemArgs struct {
	Product   string `yaml:"product"`
	Quantity  int64  `yaml:"quantity"`
	UnitPrice string `yaml:"unit_price,omitempty"`
}

// ExpectClause is the expected outcome of a flow step.
type ExpectClause struct {
	// Outcome is "OK" or an error code such as INSUFFICIENT_STOCK.
	Outcome string `yaml:"outcome"`

	// Total is checked against the receipt of a recorded sale.
	Total string `yaml:"total,omitempty"`
}

// OutcomeOK marks a step that succeeded.
const OutcomeOK = "OK"

// Assertion checks final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Product string `yaml:"product,omitempty"`
	Table   string `yaml:"table,omitempty"`
	Action  string `yaml:"action,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Equals is the expected value, parsed according to Type.
	Equals string `yaml:"equals"`
}

// Assertion types.
const (
	AssertStock         = "stock"
	AssertProductActive = "product_active"
	AssertRowCount      = "row_count"
	AssertOutcomeCount  = "outcome_count"
	AssertRevenue       = "revenue"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so a typo never silently disables a check.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios in %s: %w", dir, err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	keys := make(map[string]bool, len(s.Setup.Products))
	for i, p := range s.Setup.Products {
		if p.Key == "" || p.Name == "" {
			return fmt.Errorf("setup.products[%d]: key and name are required", i)
		}
		if keys[p.Key] {
			return fmt.Errorf("setup.products[%d]: duplicate key %q", i, p.Key)
		}
		keys[p.Key] = true
		if _, err := money.Parse(p.Price); err != nil {
			return fmt.Errorf("setup.products[%d]: %w", i, err)
		}
	}

	refs := make(map[string]bool)
	for i, step := range s.Flow {
		if err := validateStep(step, keys, refs); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, keys); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step FlowStep, keys, refs map[string]bool) error {
	switch step.Action {
	case ActionRecordSale:
		if step.Sale == nil {
			return fmt.Errorf("sale is required for %s", step.Action)
		}
		for j, item := range step.Sale.Items {
			// Unknown keys are allowed so a scenario can exercise NOT_FOUND.
			if item.Product == "" {
				return fmt.Errorf("sale.items[%d]: product is required", j)
			}
			if item.UnitPrice != "" {
				if _, err := money.Parse(item.UnitPrice); err != nil {
					return fmt.Errorf("sale.items[%d]: %w", j, err)
				}
			}
		}
		if step.Ref != "" {
			refs[step.Ref] = true
		}
	case ActionDeleteSale:
		if !refs[step.Ref] {
			return fmt.Errorf("ref %q does not name an earlier sale", step.Ref)
		}
	case ActionDeleteProduct, ActionSetStock, ActionRenameProduct:
		if !keys[step.Product] {
			return fmt.Errorf("unknown product %q", step.Product)
		}
		if step.Action == ActionRenameProduct && step.Name == "" {
			return fmt.Errorf("name is required for %s", step.Action)
		}
	case "":
		return fmt.Errorf("action is required")
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}

	if step.Expect != nil && step.Expect.Outcome == "" {
		return fmt.Errorf("expect: outcome is required")
	}
	return nil
}

func validateAssertion(a Assertion, keys map[string]bool) error {
	switch a.Type {
	case AssertStock, AssertProductActive:
		if !keys[a.Product] {
			return fmt.Errorf("unknown product %q for %s", a.Product, a.Type)
		}
	case AssertRowCount:
		if !validIdentifier.MatchString(a.Table) {
			return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier.String())
		}
	case AssertOutcomeCount:
		if a.Outcome == "" {
			return fmt.Errorf("outcome is required for %s", a.Type)
		}
	case AssertRevenue:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Equals == "" {
		return fmt.Errorf("equals is required for %s", a.Type)
	}
	return nil
}
