package ocisql

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/godror/godror"
	"github.com/sijms/go-ora/v2/network"

	"github.com/allyourbase/oraclone/internal/oci"
)

var oraCode = regexp.MustCompile(`ORA-(\d{5})`)

// classify converts a driver error into an *oci.Error carrying the server
// error code.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var e *oci.Error
	if errors.As(err, &e) {
		return err
	}
	if oe, ok := godror.AsOraErr(err); ok {
		return oci.NewError(oe.Code(), oe.Message(), op)
	}
	var ne *network.OracleError
	if errors.As(err, &ne) {
		return oci.NewError(ne.ErrCode, ne.ErrMsg, op)
	}
	if m := oraCode.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return oci.NewError(code, err.Error(), op)
	}
	return &oci.Error{Code: int(oci.StatusError), Message: err.Error(), Op: op}
}
