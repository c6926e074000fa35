// Package sdruntime wraps stable-diffusion.cpp for the generation jobs.
//
// It exposes three model modes behind one handle type:
//
//   - ModeTextToImage: prompt to still image
//   - ModeImageToImage: prompt plus source image to edited image
//   - ModeImageToVideo: still image to a short sequence of motion frames
//
// # Build modes
//
// Without the "sd" build tag the package compiles against a stub backend
// that validates model paths but cannot generate; jobs then fail with
// ErrGenerationFailed at the inference step. Build with
//
//	CGO_ENABLED=1 go build -tags sd ./...
//
// to link the real library through the small C shim described in
// bindings_sd.go.
//
// # Lifecycle
//
// An Engine loads a Model for one mode on one device. The job's stage
// manager owns the Model: it calls Release when the stage ends and then
// PurgeCache so the next stage starts with an empty device cache.
//
//	engine := sdruntime.NewEngine(sdruntime.EngineConfig{ImageModelPath: path}, logger)
//	model, err := engine.Load(ctx, sdruntime.ModeTextToImage, "cuda")
//	if err != nil {
//	    return err
//	}
//	defer model.Release()
//	result, err := model.Generate(ctx, params)
package sdruntime
