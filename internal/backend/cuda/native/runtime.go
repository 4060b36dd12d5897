//go:build cuda

package native

/*
#cgo LDFLAGS: -lcudart

// Minimal CUDA runtime forward declarations to avoid requiring headers at compile time.
// Linker will still require libcudart when building with the cuda tag.
typedef void* cudaStream_t;
typedef int cudaError_t;

extern const char* cudaGetErrorString(cudaError_t err);
extern cudaError_t cudaGetDeviceCount(int* count);
extern cudaError_t cudaStreamCreate(cudaStream_t* stream);
extern cudaError_t cudaStreamDestroy(cudaStream_t stream);
extern cudaError_t cudaStreamSynchronize(cudaStream_t stream);
extern cudaError_t cudaMalloc(void** ptr, unsigned long long size);
extern cudaError_t cudaFree(void* ptr);
extern cudaError_t cudaMemcpyAsync(void* dst, const void* src, unsigned long long size, int kind, cudaStream_t stream);
extern cudaError_t cudaMemsetAsync(void* dst, int value, unsigned long long size, cudaStream_t stream);
extern cudaError_t cudaMallocHost(void** ptr, unsigned long long size);
extern cudaError_t cudaFreeHost(void* ptr);

#define MECHPACK_CUDA_MEMCPY_HOST_TO_DEVICE 1
#define MECHPACK_CUDA_MEMCPY_DEVICE_TO_HOST 2

static const char* mechpackCudaGetErrorString(cudaError_t err) {
	return cudaGetErrorString(err);
}

static int mechpackCudaGetDeviceCount(int* out) {
	return (int)cudaGetDeviceCount(out);
}

static int mechpackCudaStreamCreate(cudaStream_t* out) {
	return (int)cudaStreamCreate(out);
}

static int mechpackCudaStreamDestroy(cudaStream_t stream) {
	return (int)cudaStreamDestroy(stream);
}

static int mechpackCudaStreamSynchronize(cudaStream_t stream) {
	return (int)cudaStreamSynchronize(stream);
}

static int mechpackCudaMalloc(void** ptr, unsigned long long size) {
	return (int)cudaMalloc(ptr, size);
}

static int mechpackCudaFree(void* ptr) {
	return (int)cudaFree(ptr);
}

static int mechpackCudaMemcpyAsync(void* dst, const void* src, unsigned long long size, int kind, cudaStream_t stream) {
	return (int)cudaMemcpyAsync(dst, src, size, kind, stream);
}

static int mechpackCudaMemsetAsync(void* dst, int value, unsigned long long size, cudaStream_t stream) {
	return (int)cudaMemsetAsync(dst, value, size, stream);
}

static int mechpackCudaMallocHost(void** ptr, unsigned long long size) {
	return (int)cudaMallocHost(ptr, size);
}

static int mechpackCudaFreeHost(void* ptr) {
	return (int)cudaFreeHost(ptr);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

type Stream struct {
	ptr C.cudaStream_t
}

type DeviceBuffer struct {
	ptr unsafe.Pointer
}

type HostBuffer struct {
	ptr unsafe.Pointer
}

func DeviceCount() (int, error) {
	var count C.int
	if err := cudaErr(C.mechpackCudaGetDeviceCount(&count)); err != nil {
		return 0, err
	}
	return int(count), nil
}

func NewStream() (Stream, error) {
	var stream C.cudaStream_t
	if err := cudaErr(C.mechpackCudaStreamCreate(&stream)); err != nil {
		return Stream{}, err
	}
	return Stream{ptr: stream}, nil
}

func (s Stream) Destroy() error {
	if s.ptr == nil {
		return nil
	}
	return cudaErr(C.mechpackCudaStreamDestroy(s.ptr))
}

func (s Stream) Synchronize() error {
	if s.ptr == nil {
		return nil
	}
	return cudaErr(C.mechpackCudaStreamSynchronize(s.ptr))
}

func AllocDevice(bytes int64) (DeviceBuffer, error) {
	if bytes <= 0 {
		return DeviceBuffer{}, fmt.Errorf("device alloc size must be > 0")
	}
	var ptr unsafe.Pointer
	if err := cudaErr(C.mechpackCudaMalloc((*unsafe.Pointer)(&ptr), C.ulonglong(bytes))); err != nil {
		return DeviceBuffer{}, err
	}
	return DeviceBuffer{ptr: ptr}, nil
}

func (b DeviceBuffer) Free() error {
	if b.ptr == nil {
		return nil
	}
	return cudaErr(C.mechpackCudaFree(b.ptr))
}

func (b DeviceBuffer) Ptr() unsafe.Pointer {
	return b.ptr
}

// Add returns the buffer view starting off bytes further in.
func (b DeviceBuffer) Add(off int64) DeviceBuffer {
	return DeviceBuffer{ptr: unsafe.Add(b.ptr, off)}
}

func AllocHostPinned(bytes int64) (HostBuffer, error) {
	if bytes <= 0 {
		return HostBuffer{}, fmt.Errorf("host alloc size must be > 0")
	}
	var ptr unsafe.Pointer
	if err := cudaErr(C.mechpackCudaMallocHost((*unsafe.Pointer)(&ptr), C.ulonglong(bytes))); err != nil {
		return HostBuffer{}, err
	}
	return HostBuffer{ptr: ptr}, nil
}

func (b HostBuffer) Free() error {
	if b.ptr == nil {
		return nil
	}
	return cudaErr(C.mechpackCudaFreeHost(b.ptr))
}

func (b HostBuffer) Ptr() unsafe.Pointer {
	return b.ptr
}

func MemcpyH2DAsync(dst DeviceBuffer, src unsafe.Pointer, bytes int64, stream Stream) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.mechpackCudaMemcpyAsync(dst.ptr, src, C.ulonglong(bytes), C.MECHPACK_CUDA_MEMCPY_HOST_TO_DEVICE, stream.ptr))
}

func MemcpyD2HAsync(dst unsafe.Pointer, src DeviceBuffer, bytes int64, stream Stream) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.mechpackCudaMemcpyAsync(dst, src.ptr, C.ulonglong(bytes), C.MECHPACK_CUDA_MEMCPY_DEVICE_TO_HOST, stream.ptr))
}

// MemsetAsync sets bytes bytes of dst to value on stream.
func MemsetAsync(dst DeviceBuffer, value byte, bytes int64, stream Stream) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.mechpackCudaMemsetAsync(dst.ptr, C.int(value), C.ulonglong(bytes), stream.ptr))
}

func cudaErr(code C.int) error {
	if code == 0 {
		return nil
	}
	msg := C.GoString(C.mechpackCudaGetErrorString(C.cudaError_t(code)))
	return fmt.Errorf("cuda runtime error %d: %s", int(code), msg)
}
