package dump

import (
	"encoding/csv"
	"io"

	"github.com/jszwec/csvutil"

	"github.com/pgavlin/warpvm/cmd/warpvm/script"
	"github.com/pgavlin/warpvm/exec"
)

// rows:
// - slot
//     - table, index, kind, null, raw value, written by an element segment

func dumpTables(w io.Writer, r *script.Runner) error {
	type row struct {
		Table       string `csv:"table"`
		Index       uint32 `csv:"index"`
		Kind        string `csv:"kind"`
		Null        bool   `csv:"null"`
		Value       uint64 `csv:"value"`
		Initialized bool   `csv:"initialized"`
	}

	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	encoder := csvutil.NewEncoder(csvWriter)
	if err := encoder.EncodeHeader(row{}); err != nil {
		return err
	}

	for _, moduleName := range r.Store.InstanceNames() {
		inst, err := r.Store.Instance(moduleName)
		if err != nil {
			return err
		}
		for i, tableName := range inst.TableNames() {
			initialized, err := inst.Initialized(tableName)
			if err != nil {
				return err
			}
			table := inst.Tables()[i]
			for index, ref := range table.Elements() {
				err := encoder.Encode(row{
					Table:       moduleName + "." + tableName,
					Index:       uint32(index),
					Kind:        ref.Kind().String(),
					Null:        exec.IsNull(ref),
					Value:       script.RawValue(ref),
					Initialized: initialized.Test(uint(index)),
				})
				if err != nil {
					return err
				}
			}
		}
	}

	return csvWriter.Error()
}
