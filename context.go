// Package render owns the Vulkan context shared by every subsystem of the
// render core: instance, device, queues and the helpers built on top of them.
// There is no process-wide state; a Context is created by the host and passed
// by reference into each subsystem.
package render

import (
	"log"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

// Options configures Context creation. InstanceProcAddr and
// InstanceExtensions come from the windowing layer.
type Options struct {
	AppName            string
	InstanceProcAddr   unsafe.Pointer
	InstanceExtensions []string
	EnableValidation   bool
}

// Context is the explicitly owned renderer context: the Vulkan instance and
// device plus the queues and command pool the frame loop submits through.
// Fields are populated in two phases: NewContext builds the instance, and
// InitDevice picks and initializes the device once a surface exists.
type Context struct {
	GlobalDriver   core1_0.GlobalDriver
	InstanceDriver core1_0.CoreInstanceDriver
	DeviceDriver   core1_0.CoreDeviceDriver

	DebugDriver      ext_debug_utils.ExtensionDriver
	DebugMessenger   ext_debug_utils.DebugUtilsMessenger
	SurfaceExtension khr_surface.ExtensionDriver
	Surface          khr_surface.Surface

	PhysicalDevice core1_0.PhysicalDevice

	GraphicsQueue  core1_0.Queue
	PresentQueue   core1_0.Queue
	GraphicsFamily int
	PresentFamily  int

	CommandPool core1_0.CommandPool

	enableValidation bool
}

// NewContext creates the instance and, when validation is enabled, the debug
// messenger. The surface and device are initialized separately with
// InitDevice, since queue selection needs a surface to query against.
func NewContext(o Options) (*Context, error) {
	ctx := &Context{
		GraphicsFamily:   -1,
		PresentFamily:    -1,
		enableValidation: o.EnableValidation,
	}

	var err error
	ctx.GlobalDriver, err = core.CreateDriverFromProcAddr(o.InstanceProcAddr)
	if err != nil {
		return nil, errors.Wrap(err, "creating global driver")
	}

	err = ctx.createInstance(o)
	if err != nil {
		return nil, err
	}

	if o.EnableValidation {
		err = ctx.setupDebugMessenger()
		if err != nil {
			ctx.Destroy()
			return nil, err
		}
	}

	ctx.SurfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(ctx.InstanceDriver)
	return ctx, nil
}

func (ctx *Context) createInstance(o Options) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    o.AppName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "vkngwrapper/render",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := ctx.GlobalDriver.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerating instance extensions")
	}

	for _, ext := range o.InstanceExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("required instance extension %s is not available", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if o.EnableValidation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	layers, _, err := ctx.GlobalDriver.AvailableLayers()
	if err != nil {
		return errors.Wrap(err, "enumerating instance layers")
	}

	if o.EnableValidation {
		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.Newf("validation layer %s is not available- install the LunarG Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.Next = debugMessengerOptions()
	}

	ctx.InstanceDriver, _, err = ctx.GlobalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return errors.Wrap(err, "creating instance")
	}

	return nil
}

func debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    logDebugMessage,
	}
}

func logDebugMessage(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	log.Printf("[%s %s] - %s", severity, msgType, data.Message)
	return false
}

func (ctx *Context) setupDebugMessenger() error {
	var err error
	ctx.DebugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(ctx.InstanceDriver)
	ctx.DebugMessenger, _, err = ctx.DebugDriver.CreateDebugUtilsMessenger(nil, debugMessengerOptions())
	if err != nil {
		return errors.Wrap(err, "creating debug messenger")
	}

	return nil
}

// InitDevice picks the best-scoring physical device for surface, creates the
// logical device and queues, and allocates the command pool. The surface is
// retained for swapchain negotiation.
func (ctx *Context) InitDevice(surface khr_surface.Surface) error {
	ctx.Surface = surface

	err := ctx.pickPhysicalDevice()
	if err != nil {
		return err
	}

	err = ctx.createLogicalDevice()
	if err != nil {
		return err
	}

	ctx.CommandPool, _, err = ctx.DeviceDriver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: ctx.GraphicsFamily,
		Flags:            core1_0.CommandPoolCreateResetBuffer,
	})
	if err != nil {
		return errors.Wrap(err, "creating command pool")
	}

	return nil
}

func (ctx *Context) createLogicalDevice() error {
	uniqueQueueFamilies := []int{ctx.GraphicsFamily}
	if ctx.GraphicsFamily != ctx.PresentFamily {
		uniqueQueueFamilies = append(uniqueQueueFamilies, ctx.PresentFamily)
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	extensionNames := append([]string{}, deviceExtensions...)

	// Required for vulkan portability implementations (MoltenVK and friends)
	extensions, _, err := ctx.InstanceDriver.EnumerateDeviceExtensionProperties(ctx.PhysicalDevice)
	if err != nil {
		return errors.Wrap(err, "enumerating device extensions")
	}

	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	features := ctx.InstanceDriver.GetPhysicalDeviceFeatures(ctx.PhysicalDevice)

	ctx.DeviceDriver, _, err = ctx.InstanceDriver.CreateDevice(ctx.PhysicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: features.SamplerAnisotropy,
			FillModeNonSolid:  features.FillModeNonSolid,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "creating logical device")
	}

	ctx.GraphicsQueue = ctx.DeviceDriver.GetQueue(ctx.GraphicsFamily, 0)
	ctx.PresentQueue = ctx.DeviceDriver.GetQueue(ctx.PresentFamily, 0)
	return nil
}

// WaitIdle blocks until the device has finished all submitted work.
func (ctx *Context) WaitIdle() error {
	if ctx.DeviceDriver == nil {
		return nil
	}
	_, err := ctx.DeviceDriver.DeviceWaitIdle()
	return err
}

// Destroy releases everything the context owns, in reverse creation order.
// Safe to call on a partially initialized context.
func (ctx *Context) Destroy() {
	if ctx.CommandPool.Initialized() {
		ctx.DeviceDriver.DestroyCommandPool(ctx.CommandPool, nil)
		ctx.CommandPool = core1_0.CommandPool{}
	}

	if ctx.DeviceDriver != nil {
		ctx.DeviceDriver.DestroyDevice(nil)
		ctx.DeviceDriver = nil
	}

	if ctx.DebugMessenger.Initialized() {
		ctx.DebugDriver.DestroyDebugUtilsMessenger(ctx.DebugMessenger, nil)
		ctx.DebugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}

	if ctx.Surface.Initialized() {
		ctx.SurfaceExtension.DestroySurface(ctx.Surface, nil)
		ctx.Surface = khr_surface.Surface{}
	}

	if ctx.InstanceDriver != nil {
		ctx.InstanceDriver.DestroyInstance(nil)
		ctx.InstanceDriver = nil
	}
}
