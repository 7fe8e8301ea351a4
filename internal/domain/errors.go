package domain

import "fmt"

// StructuralError indicates a malformed batch (missing required columns,
// unreadable input). The whole batch is aborted; no rows are curated.
type StructuralError struct {
	Batch  string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error in batch %s: %s", e.Batch, e.Reason)
}

// PartitionWriteError indicates an I/O failure during an atomic partition
// replace. The partition is left at its pre-run snapshot.
type PartitionWriteError struct {
	Table     string
	Partition string
	Err       error
}

func (e *PartitionWriteError) Error() string {
	return fmt.Sprintf("partition write failed for %s/%s: %v", e.Table, e.Partition, e.Err)
}

func (e *PartitionWriteError) Unwrap() error {
	return e.Err
}
