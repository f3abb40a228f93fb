package specialization

import (
	"strconv"
	"strings"

	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/profile"
)

// Reasons attached to negative decisions.
const (
	ReasonNone                   = "NO_REASON"
	ReasonNoProfiles             = "NO_PROFILES"
	ReasonNoNonReceiverParams    = "NO_NON_RECEIVER_PARAMS"
	ReasonOptLevelBelowMaximum   = "OPT_LEVEL_SMALLER_THAN_MAXIMUM"
	ReasonOptLevelBelowTwo       = "OPT_LEVEL_SMALLER_THAN_TWO"
	ReasonNoCandidates           = "NO_CANDIDATES_FOUND"
	ReasonDisabled               = "SPECIALIZATION_DISABLED"
	ReasonAllCandidatesCreated   = "ALL_CANDIDATES_CREATED"
	ReasonWaitingForClassLoading = "WAITING_FOR_CLASS_LOADING"
	ReasonTargetMethodNotFound   = "TARGET_METHOD_NOT_FOUND"
)

// CompilationPlan describes the optimizing compile that triggered a
// decision.
type CompilationPlan struct {
	OptLevel int
}

// Decision is the outcome of asking an oracle about one method. Context is
// set only when Yes.
type Decision struct {
	Method  *model.Method
	Yes     bool
	Reasons []string
	Context *Context
	Profile *profile.MethodProfile
}

func yes(m *model.Method, p *profile.MethodProfile, ctx *Context) Decision {
	return Decision{Method: m, Yes: true, Context: ctx, Profile: p}
}

func no(m *model.Method, p *profile.MethodProfile, reasons ...string) Decision {
	return Decision{Method: m, Reasons: reasons, Profile: p}
}

// Reason joins the reasons with spaces.
func (d Decision) Reason() string {
	if len(d.Reasons) == 0 {
		return ReasonNone
	}
	return strings.Join(d.Reasons, " ")
}

// String renders the decision as one decision log record.
func (d Decision) String() string {
	var prim, objs, arrays int
	for _, p := range d.Method.Params {
		switch {
		case p.Kind != model.KindReference:
			prim++
		case p.Array:
			arrays++
		default:
			objs++
		}
	}
	kind := "INSTANCE"
	if d.Method.Static {
		kind = "STATIC"
	}
	verdict := "NO"
	if d.Yes {
		verdict = "YES"
	}

	var sb strings.Builder
	sb.WriteString(strings.Join([]string{
		"SPEC_DECISION", d.Method.Class, d.Method.Name, d.Method.Signature(), kind,
		"PRIM_PARAMS", strconv.Itoa(prim),
		"REAL_OBJ_PARAMS", strconv.Itoa(objs),
		"ARRAY_PARAMS", strconv.Itoa(arrays),
		verdict, d.Reason(),
	}, " "))
	sb.WriteString("\n")
	if d.Yes && d.Context != nil {
		sb.WriteString(d.Context.String())
		sb.WriteString("\n")
	}
	if d.Profile != nil {
		sb.WriteString(" PROFILES: \n\t")
		sb.WriteString(d.Profile.String())
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}
