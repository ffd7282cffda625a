package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/xmm-lightcurves/constants"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/region"
)

// SelectionProfile is the event filter applied to every extraction.
type SelectionProfile struct {
	QualityFlag string  `json:"quality_flag"`
	MaxPattern  int     `json:"max_pattern"`
	PIMin       int     `json:"pi_min"`
	PIMax       int     `json:"pi_max"`
	TimeBin     float64 `json:"time_bin"`
}

func DefaultProfile() SelectionProfile {
	return SelectionProfile{
		QualityFlag: constants.DefaultQualityFlag,
		MaxPattern:  constants.DefaultMaxPattern,
		PIMin:       constants.DefaultPIMin,
		PIMax:       constants.DefaultPIMax,
		TimeBin:     constants.DefaultTimeBin,
	}
}

// ProfileJSONSchema describes a selection profile file. Omitted fields keep
// their defaults.
func ProfileJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"quality_flag": map[string]any{"type": "string", "pattern": `^#?[A-Z_]+$`},
			"max_pattern":  map[string]any{"type": "integer", "minimum": 0, "maximum": 12},
			"pi_min":       map[string]any{"type": "integer", "minimum": 0},
			"pi_max":       map[string]any{"type": "integer", "minimum": 1},
			"time_bin":     map[string]any{"type": "number", "exclusiveMinimum": 0},
		},
	}
}

// ParseProfile validates data against ProfileJSONSchema and overlays it on the defaults.
func ParseProfile(data []byte) (SelectionProfile, error) {
	if err := validateJSON(ProfileJSONSchema(), data); err != nil {
		return SelectionProfile{}, common.NewAppError("INVALID_PROFILE", "selection profile", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	p := DefaultProfile()
	if err := json.Unmarshal(data, &p); err != nil {
		return SelectionProfile{}, fmt.Errorf("decode profile: %w", err)
	}
	if p.PIMin >= p.PIMax {
		return SelectionProfile{}, common.NewAppError("INVALID_PROFILE",
			fmt.Sprintf("pi_min %d must be below pi_max %d", p.PIMin, p.PIMax), common.ErrInvalidInput)
	}
	return p, nil
}

// LoadProfile reads a profile file; an empty path yields the defaults.
func LoadProfile(path string) (SelectionProfile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return SelectionProfile{}, common.MissingInput("selection profile %s: %v", path, err)
	}
	return ParseProfile(b)
}

func validateJSON(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("profile.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("profile.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

func (p SelectionProfile) base() string {
	return fmt.Sprintf("%s&&(PATTERN<=%d)&&(PI in [%d:%d])", p.QualityFlag, p.MaxPattern, p.PIMin, p.PIMax)
}

// SourceExpression selects events inside a source circle.
func (p SelectionProfile) SourceExpression(src region.Spec) string {
	return fmt.Sprintf("%s&&((X,Y) IN circle(%s))", p.base(), joinParams(src))
}

// BackgroundExpression selects events inside the annulus that the mask keeps.
func (p SelectionProfile) BackgroundExpression(maskPath string, bkg region.Spec) string {
	return fmt.Sprintf("%s&&mask(%s,0,0,X,Y)&&((X,Y) IN annulus(%s))", p.base(), maskPath, joinParams(bkg))
}

func joinParams(s region.Spec) string {
	var buf bytes.Buffer
	for i, v := range s.Params() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return buf.String()
}
