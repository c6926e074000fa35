//go:build sd && cgo

// Real backend linking stable-diffusion.cpp through libsdshim, a thin C
// layer that flattens the library's option structs into plain arguments so
// this file does not track upstream struct layout changes.
//
// Example:
//
//	CGO_CFLAGS="-I${SD_CPP_PATH}" \
//	CGO_LDFLAGS="-L${SD_CPP_PATH}/build -Wl,-rpath,${SD_CPP_PATH}/build" \
//	go build -tags sd ./...

package sdruntime

/*
#cgo LDFLAGS: -lsdshim -lstable-diffusion
#include <stdlib.h>
#include <stdint.h>

typedef struct sdshim_ctx sdshim_ctx;

typedef struct {
	int width;
	int height;
	int channels;
	uint8_t* data;
} sdshim_image;

extern sdshim_ctx* sdshim_load(const char* model_path, int mode, int use_gpu, int half_precision, int cpu_offload, int threads);
extern void sdshim_free(sdshim_ctx* ctx);
extern int sdshim_txt2img(sdshim_ctx* ctx, const char* prompt, const char* negative_prompt,
	int width, int height, int steps, float cfg_scale, int64_t seed, sdshim_image* out);
extern int sdshim_img2img(sdshim_ctx* ctx, const char* prompt, const char* negative_prompt,
	const sdshim_image* init, int steps, float cfg_scale, float strength, int64_t seed, sdshim_image* out);
extern int sdshim_img2vid(sdshim_ctx* ctx, const sdshim_image* init, int frames, int decode_chunk,
	int motion_bucket_id, int fps, int64_t seed, sdshim_image* out_frames);
extern void sdshim_free_image(sdshim_image* img);
extern int sdshim_purge_cache(void);
extern const char* sdshim_backend_info(void);
*/
import "C"

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"
)

var (
	sdContextCounter uint64
	contextMu        sync.Mutex
	contextMap       = make(map[uint64]*C.sdshim_ctx)
)

func loadModelImpl(opts LoadOptions) (*SDContext, error) {
	if opts.ModelPath == "" {
		return nil, fmt.Errorf("%w: no model path configured for %s", ErrModelNotFound, opts.Mode)
	}
	if _, err := os.Stat(opts.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, opts.ModelPath)
	} else if err != nil {
		return nil, fmt.Errorf("%w: unable to access %s: %v", ErrModelLoadFailed, opts.ModelPath, err)
	}

	cPath := C.CString(opts.ModelPath)
	defer C.free(unsafe.Pointer(cPath))

	cCtx := C.sdshim_load(cPath, C.int(opts.Mode), cBool(opts.Device == "cuda"),
		cBool(opts.HalfPrecision), cBool(opts.CPUOffload), C.int(opts.Threads))
	if cCtx == nil {
		return nil, fmt.Errorf("%w: %s on %s", ErrModelLoadFailed, opts.ModelPath, opts.Device)
	}

	id := atomic.AddUint64(&sdContextCounter, 1)
	contextMu.Lock()
	contextMap[id] = cCtx
	contextMu.Unlock()

	return &SDContext{id: id, modelPath: opts.ModelPath, mode: opts.Mode, device: opts.Device, valid: true}, nil
}

func lookup(ctx *SDContext) (*C.sdshim_ctx, error) {
	if !ctx.IsValid() {
		return nil, fmt.Errorf("%w: context is nil or invalid", ErrGenerationFailed)
	}
	contextMu.Lock()
	defer contextMu.Unlock()
	cCtx, ok := contextMap[ctx.id]
	if !ok || cCtx == nil {
		return nil, fmt.Errorf("%w: no valid C context found", ErrGenerationFailed)
	}
	return cCtx, nil
}

func generateImageImpl(ctx *SDContext, params GenerateParams) (*GenerateResult, error) {
	cCtx, err := lookup(ctx)
	if err != nil {
		return nil, err
	}

	cPrompt := C.CString(params.Prompt)
	defer C.free(unsafe.Pointer(cPrompt))
	cNeg := C.CString(params.NegativePrompt)
	defer C.free(unsafe.Pointer(cNeg))

	var out C.sdshim_image
	var rc C.int
	if params.InitImage != nil {
		init, free, err := pngToC(params.InitImage)
		if err != nil {
			return nil, err
		}
		defer free()
		rc = C.sdshim_img2img(cCtx, cPrompt, cNeg, init, C.int(params.Steps),
			C.float(params.CFGScale), C.float(params.Strength), C.int64_t(params.Seed), &out)
	} else {
		rc = C.sdshim_txt2img(cCtx, cPrompt, cNeg, C.int(params.Width), C.int(params.Height),
			C.int(params.Steps), C.float(params.CFGScale), C.int64_t(params.Seed), &out)
	}
	if rc != 0 || out.data == nil {
		return nil, fmt.Errorf("%w: backend returned %d", ErrGenerationFailed, int(rc))
	}
	defer C.sdshim_free_image(&out)

	data, err := cToPNG(&out)
	if err != nil {
		return nil, err
	}
	return &GenerateResult{ImageData: data, Width: int(out.width), Height: int(out.height), Seed: params.Seed}, nil
}

func generateVideoImpl(ctx *SDContext, params VideoParams) (*VideoResult, error) {
	cCtx, err := lookup(ctx)
	if err != nil {
		return nil, err
	}
	init, free, err := pngToC(params.InitImage)
	if err != nil {
		return nil, err
	}
	defer free()

	size := C.size_t(params.Frames) * C.size_t(unsafe.Sizeof(C.sdshim_image{}))
	outPtr := (*C.sdshim_image)(C.calloc(1, size))
	if outPtr == nil {
		return nil, ErrOutOfVRAM
	}
	defer C.free(unsafe.Pointer(outPtr))
	outFrames := unsafe.Slice(outPtr, params.Frames)

	rc := C.sdshim_img2vid(cCtx, init, C.int(params.Frames), C.int(params.DecodeChunkSize),
		C.int(params.MotionBucketID), C.int(params.FPS), C.int64_t(params.Seed), outPtr)
	defer func() {
		for i := range outFrames {
			C.sdshim_free_image(&outFrames[i])
		}
	}()
	if rc != 0 {
		return nil, fmt.Errorf("%w: backend returned %d", ErrGenerationFailed, int(rc))
	}

	frames := make([][]byte, 0, params.Frames)
	for i := range outFrames {
		data, err := cToPNG(&outFrames[i])
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames = append(frames, data)
	}
	return &VideoResult{Frames: frames, FPS: params.FPS, Seed: params.Seed}, nil
}

func freeContextImpl(ctx *SDContext) {
	if ctx == nil {
		return
	}
	contextMu.Lock()
	if cCtx, ok := contextMap[ctx.id]; ok && cCtx != nil {
		C.sdshim_free(cCtx)
		delete(contextMap, ctx.id)
	}
	contextMu.Unlock()
	ctx.valid = false
}

func purgeDeviceCacheImpl() error {
	if rc := C.sdshim_purge_cache(); rc != 0 {
		return fmt.Errorf("sdruntime: device cache purge returned %d", int(rc))
	}
	return nil
}

func getBackendInfoImpl() string {
	if info := C.sdshim_backend_info(); info != nil {
		return C.GoString(info)
	}
	return "sd (unknown backend)"
}

func cBool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

// pngToC decodes PNG data into a C-allocated RGB buffer.
func pngToC(data []byte) (*C.sdshim_image, func(), error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrImageDecodeFail, err)
	}
	rgb := ToRGB(img)
	b := img.Bounds()

	buf := C.CBytes(rgb)
	cImg := (*C.sdshim_image)(C.calloc(1, C.size_t(unsafe.Sizeof(C.sdshim_image{}))))
	cImg.width = C.int(b.Dx())
	cImg.height = C.int(b.Dy())
	cImg.channels = 3
	cImg.data = (*C.uint8_t)(buf)

	free := func() {
		C.free(buf)
		C.free(unsafe.Pointer(cImg))
	}
	return cImg, free, nil
}

// cToPNG copies a C image into a PNG.
func cToPNG(img *C.sdshim_image) ([]byte, error) {
	w, h, ch := int(img.width), int(img.height), int(img.channels)
	if w <= 0 || h <= 0 || (ch != 3 && ch != 4) {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrImageInvalidSize, w, h, ch)
	}
	raw := C.GoBytes(unsafe.Pointer(img.data), C.int(w*h*ch))

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i < len(raw); i, j = i+ch, j+4 {
		out.Pix[j], out.Pix[j+1], out.Pix[j+2] = raw[i], raw[i+1], raw[i+2]
		out.Pix[j+3] = 0xff
		if ch == 4 {
			out.Pix[j+3] = raw[i+3]
		}
	}
	return EncodePNG(out)
}
