package render

import (
	"log"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

var deviceExtensions = []string{khr_swapchain.ExtensionName}

type queueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

func (i *queueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

// deviceCandidate captures one physical device and its suitability score so
// the selection dump can list every candidate when startup fails.
type deviceCandidate struct {
	Device  core1_0.PhysicalDevice
	Name    string
	Score   int
	Reason  string
	Indices queueFamilyIndices
}

// pickPhysicalDevice scores every physical device and keeps the best. When no
// device is suitable, every candidate and its score is logged before the
// fatal error is returned.
func (ctx *Context) pickPhysicalDevice() error {
	physicalDevices, _, err := ctx.InstanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerating physical devices")
	}

	if len(physicalDevices) == 0 {
		return errors.New("no physical devices with vulkan support")
	}

	var candidates []deviceCandidate
	best := -1
	for _, device := range physicalDevices {
		candidate, err := ctx.scoreDevice(device)
		if err != nil {
			return err
		}
		candidates = append(candidates, candidate)
		if candidate.Score > 0 && (best < 0 || candidate.Score > candidates[best].Score) {
			best = len(candidates) - 1
		}
	}

	if best < 0 {
		for _, candidate := range candidates {
			log.Printf("device %q: score %d (%s)", candidate.Name, candidate.Score, candidate.Reason)
		}
		return errors.New("failed to find a suitable GPU")
	}

	chosen := candidates[best]
	ctx.PhysicalDevice = chosen.Device
	ctx.GraphicsFamily = *chosen.Indices.GraphicsFamily
	ctx.PresentFamily = *chosen.Indices.PresentFamily
	return nil
}

func (ctx *Context) scoreDevice(device core1_0.PhysicalDevice) (deviceCandidate, error) {
	candidate := deviceCandidate{Device: device}

	properties, err := ctx.InstanceDriver.GetPhysicalDeviceProperties(device)
	if err != nil {
		return candidate, errors.Wrap(err, "querying device properties")
	}
	candidate.Name = properties.DriverName

	indices, err := ctx.findQueueFamilies(device)
	if err != nil {
		return candidate, err
	}
	candidate.Indices = indices

	if !indices.IsComplete() {
		candidate.Reason = "missing graphics or present queue family"
		return candidate, nil
	}

	if !ctx.checkDeviceExtensionSupport(device) {
		candidate.Reason = "missing required device extensions"
		return candidate, nil
	}

	formats, _, err := ctx.SurfaceExtension.GetPhysicalDeviceSurfaceFormats(ctx.Surface, device)
	if err != nil {
		return candidate, errors.Wrap(err, "querying surface formats")
	}
	presentModes, _, err := ctx.SurfaceExtension.GetPhysicalDeviceSurfacePresentModes(ctx.Surface, device)
	if err != nil {
		return candidate, errors.Wrap(err, "querying surface present modes")
	}
	if len(formats) == 0 || len(presentModes) == 0 {
		candidate.Reason = "no usable surface formats or present modes"
		return candidate, nil
	}

	candidate.Score = scoreDeviceProperties(properties)
	candidate.Reason = "suitable"
	return candidate, nil
}

// scoreDeviceProperties ranks suitable devices: discrete GPUs beat integrated,
// ties break on maximum 2D image dimension.
func scoreDeviceProperties(properties *core1_0.PhysicalDeviceProperties) int {
	score := 1
	switch properties.DriverType {
	case core1_0.PhysicalDeviceTypeDiscreteGPU:
		score += 10000
	case core1_0.PhysicalDeviceTypeIntegratedGPU:
		score += 5000
	case core1_0.PhysicalDeviceTypeVirtualGPU:
		score += 2000
	}
	score += properties.Limits.MaxImageDimension2D
	return score
}

func (ctx *Context) findQueueFamilies(device core1_0.PhysicalDevice) (queueFamilyIndices, error) {
	indices := queueFamilyIndices{}
	queueFamilies := ctx.InstanceDriver.GetPhysicalDeviceQueueFamilyProperties(device)

	for queueFamilyIdx, queueFamily := range queueFamilies {
		if (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0 {
			indices.GraphicsFamily = new(int)
			*indices.GraphicsFamily = queueFamilyIdx
		}

		supported, _, err := ctx.SurfaceExtension.GetPhysicalDeviceSurfaceSupport(ctx.Surface, device, queueFamilyIdx)
		if err != nil {
			return indices, errors.Wrap(err, "querying surface support")
		}

		if supported {
			indices.PresentFamily = new(int)
			*indices.PresentFamily = queueFamilyIdx
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices, nil
}

func (ctx *Context) checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := ctx.InstanceDriver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		_, hasExtension := extensions[extension]
		if !hasExtension {
			return false
		}
	}

	return true
}
