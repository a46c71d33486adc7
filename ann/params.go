package ann

import (
	"strconv"
	"strings"
)

// queryParams holds the query-time knobs a "nprobe=…,ht=…,k_factor=…,
// max_codes=…" parameter string sets. Unset fields keep their previous
// value; SetParameters never resets to zero fields it doesn't mention.
type queryParams struct {
	NProbe   int
	HT       int // hamming/quantization threshold placeholder, recipe-specific
	KFactor  float64
	MaxCodes int
}

func defaultQueryParams() queryParams {
	return queryParams{NProbe: 1, KFactor: 1}
}

// parseParams parses a comma-separated "key=value" parameter string,
// applying recognized keys onto base and returning the result. Unknown
// keys are rejected, matching faiss's SetParameters/ParameterSpace
// strictness, which this recipe-string factory is otherwise modeled on.
func parseParams(base queryParams, s string) (queryParams, error) {
	if s == "" {
		return base, nil
	}
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return base, &ParamError{Param: kv}
		}
		key, val := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		switch key {
		case "nprobe":
			n, err := strconv.Atoi(val)
			if err != nil {
				return base, &ParamError{Param: kv}
			}
			base.NProbe = n
		case "ht":
			n, err := strconv.Atoi(val)
			if err != nil {
				return base, &ParamError{Param: kv}
			}
			base.HT = n
		case "k_factor":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return base, &ParamError{Param: kv}
			}
			base.KFactor = f
		case "max_codes":
			n, err := strconv.Atoi(val)
			if err != nil {
				return base, &ParamError{Param: kv}
			}
			base.MaxCodes = n
		default:
			return base, &ParamError{Param: kv}
		}
	}
	return base, nil
}

// ParamError reports an unrecognized or malformed query parameter.
type ParamError struct {
	Param string
}

func (e *ParamError) Error() string {
	return "ann: invalid parameter " + e.Param
}
