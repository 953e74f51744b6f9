package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared; validator caches struct metadata per type.
var validate = validator.New()

// Check runs struct-tag validation over the project and every activity.
// It reports shape problems (missing ids, unknown directions or branch
// types). Graph-level rules live in the compiler's validator.
func Check(p *Project) error {
	var problems []string
	collect := func(where string, err error) {
		if err == nil {
			return
		}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s: %s failed %q", where, fe.Namespace(), fe.Tag()))
			}
			return
		}
		problems = append(problems, fmt.Sprintf("%s: %v", where, err))
	}

	collect("project", validate.Struct(p))
	for _, s := range p.AllScenarios() {
		for _, n := range s.Nodes {
			if n.Activity == nil {
				continue
			}
			collect(fmt.Sprintf("scenario %s node %s", s.ID, n.ID), validate.Struct(n.Activity))
		}
	}

	if len(problems) > 0 {
		return &CheckError{Problems: problems}
	}
	return nil
}

// CheckError lists every struct validation failure.
type CheckError struct {
	Problems []string
}

func (e *CheckError) Error() string {
	return "invalid project: " + strings.Join(e.Problems, "; ")
}
