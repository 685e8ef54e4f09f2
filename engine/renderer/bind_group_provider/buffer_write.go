package bind_group_provider

// BufferWrite is a staged upload into one of a provider's buffers, applied by the
// renderer backend through the device queue before the frame is submitted.
type BufferWrite struct {
	Provider BindGroupProvider
	Offset   uint64
	Data     []byte
}
