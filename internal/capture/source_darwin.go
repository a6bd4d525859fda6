//go:build darwin && cgo

package capture

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework AppKit -framework ScreenCaptureKit -framework CoreMedia -framework CoreVideo

#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <AppKit/AppKit.h>
#include <ScreenCaptureKit/ScreenCaptureKit.h>
#include <CoreMedia/CoreMedia.h>
#include <CoreVideo/CoreVideo.h>
#include <stdlib.h>
#include <dispatch/dispatch.h>

typedef struct {
    void* data;
    int width;
    int height;
    int bytesPerRow;
    int error;
} MirageCaptureResult;

static dispatch_semaphore_t g_semaphore = NULL;
static MirageCaptureResult g_result = {0};

@interface MirageStreamOutput : NSObject <SCStreamOutput>
@property (nonatomic, assign) BOOL frameReceived;
@end

@implementation MirageStreamOutput
- (void)stream:(SCStream *)stream didOutputSampleBuffer:(CMSampleBufferRef)sampleBuffer ofType:(SCStreamOutputType)type {
    if (type != SCStreamOutputTypeScreen || self.frameReceived) {
        return;
    }
    CVImageBufferRef imageBuffer = CMSampleBufferGetImageBuffer(sampleBuffer);
    if (imageBuffer == NULL) {
        g_result.error = 5;
        self.frameReceived = YES;
        dispatch_semaphore_signal(g_semaphore);
        return;
    }
    CVPixelBufferLockBaseAddress(imageBuffer, kCVPixelBufferLock_ReadOnly);
    g_result.width = (int)CVPixelBufferGetWidth(imageBuffer);
    g_result.height = (int)CVPixelBufferGetHeight(imageBuffer);
    g_result.bytesPerRow = g_result.width * 4;
    size_t srcBytesPerRow = CVPixelBufferGetBytesPerRow(imageBuffer);
    void* srcData = CVPixelBufferGetBaseAddress(imageBuffer);
    size_t dataSize = g_result.bytesPerRow * g_result.height;
    g_result.data = malloc(dataSize);
    if (g_result.data == NULL) {
        g_result.error = 4;
        CVPixelBufferUnlockBaseAddress(imageBuffer, kCVPixelBufferLock_ReadOnly);
        self.frameReceived = YES;
        dispatch_semaphore_signal(g_semaphore);
        return;
    }
    // Pixel data stays BGRA: the encoder's BGRAProvider path consumes it
    // directly, skipping a BGRA->RGBA conversion pass.
    unsigned char* src = (unsigned char*)srcData;
    unsigned char* dst = (unsigned char*)g_result.data;
    for (int y = 0; y < g_result.height; y++) {
        memcpy(dst + y * g_result.bytesPerRow, src + y * srcBytesPerRow, g_result.bytesPerRow);
    }
    CVPixelBufferUnlockBaseAddress(imageBuffer, kCVPixelBufferLock_ReadOnly);
    self.frameReceived = YES;
    dispatch_semaphore_signal(g_semaphore);
}
@end

static MirageStreamOutput* g_streamOutput = nil;

MirageCaptureResult mirage_capture_screen(int displayIndex) {
    memset(&g_result, 0, sizeof(g_result));
    if (g_semaphore == NULL) {
        g_semaphore = dispatch_semaphore_create(0);
    }
    __block int setupError = 0;
    [SCShareableContent getShareableContentWithCompletionHandler:^(SCShareableContent * _Nullable content, NSError * _Nullable error) {
        if (error != nil || content == nil) {
            setupError = 1;
            dispatch_semaphore_signal(g_semaphore);
            return;
        }
        NSArray<SCDisplay *>* displays = content.displays;
        if (displays.count == 0) {
            setupError = 2;
            dispatch_semaphore_signal(g_semaphore);
            return;
        }
        NSUInteger idx = (NSUInteger)displayIndex;
        if (idx >= displays.count) idx = 0;
        SCDisplay* display = displays[idx];
        SCContentFilter* filter = [[SCContentFilter alloc] initWithDisplay:display excludingWindows:@[]];
        SCStreamConfiguration* config = [[SCStreamConfiguration alloc] init];
        config.width = display.width * 2;
        config.height = display.height * 2;
        config.minimumFrameInterval = CMTimeMake(1, 60);
        config.pixelFormat = kCVPixelFormatType_32BGRA;
        config.showsCursor = YES;
        SCStream* stream = [[SCStream alloc] initWithFilter:filter configuration:config delegate:nil];
        if (g_streamOutput == nil) {
            g_streamOutput = [[MirageStreamOutput alloc] init];
        }
        g_streamOutput.frameReceived = NO;
        NSError* addError = nil;
        [stream addStreamOutput:g_streamOutput type:SCStreamOutputTypeScreen sampleHandlerQueue:dispatch_get_main_queue() error:&addError];
        if (addError != nil) {
            setupError = 3;
            dispatch_semaphore_signal(g_semaphore);
            return;
        }
        [stream startCaptureWithCompletionHandler:^(NSError * _Nullable startError) {
            if (startError != nil) {
                setupError = 3;
                dispatch_semaphore_signal(g_semaphore);
                return;
            }
            dispatch_after(dispatch_time(DISPATCH_TIME_NOW, (int64_t)(0.5 * NSEC_PER_SEC)), dispatch_get_main_queue(), ^{
                [stream stopCaptureWithCompletionHandler:^(NSError * _Nullable stopError) {}];
            });
        }];
    }];
    dispatch_semaphore_wait(g_semaphore, dispatch_time(DISPATCH_TIME_NOW, (int64_t)(5.0 * NSEC_PER_SEC)));
    if (setupError != 0) {
        g_result.error = setupError;
    }
    return g_result;
}

void mirage_screen_bounds(int displayIndex, int* width, int* height, int* error) {
    *error = 0;
    NSArray<NSScreen *>* screens = [NSScreen screens];
    if (screens.count == 0) {
        *error = 1;
        return;
    }
    NSUInteger idx = (NSUInteger)displayIndex;
    if (idx >= screens.count) idx = 0;
    NSScreen* screen = screens[idx];
    NSRect frame = [screen frame];
    CGFloat scaleFactor = [screen backingScaleFactor];
    *width = (int)(frame.size.width * scaleFactor);
    *height = (int)(frame.size.height * scaleFactor);
}

void mirage_free_capture(void* data) {
    if (data != NULL) free(data);
}
*/
import "C"

import (
	"fmt"
	"image"
	"sync"
)

// darwinSource captures via ScreenCaptureKit, using a
// semaphore-synchronized single-frame capture bridging shape; trimmed
// to drop desktop-switch and DXGI-texture collaborator support that has
// no counterpart on macOS.
type darwinSource struct {
	displayIndex int
	mu           sync.Mutex
}

func newPlatformSource(cfg Config) (Source, error) {
	return &darwinSource{displayIndex: 0}, nil
}

func (s *darwinSource) Capture() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := C.mirage_capture_screen(C.int(s.displayIndex))
	if result.error != 0 {
		return nil, translateError(int(result.error))
	}
	if result.data == nil {
		return nil, fmt.Errorf("capture: no frame produced")
	}
	defer C.mirage_free_capture(result.data)
	return toImage(result)
}

func (s *darwinSource) CaptureRegion(x, y, width, height int) (*image.RGBA, error) {
	full, err := s.Capture()
	if err != nil {
		return nil, err
	}
	b := full.Bounds()
	if x+width > b.Dx() {
		width = b.Dx() - x
	}
	if y+height > b.Dy() {
		height = b.Dy() - y
	}
	cropped := image.NewRGBA(image.Rect(0, 0, width, height))
	for dy := 0; dy < height; dy++ {
		for dx := 0; dx < width; dx++ {
			cropped.Set(dx, dy, full.At(x+dx, y+dy))
		}
	}
	return cropped, nil
}

func (s *darwinSource) Bounds() (int, int, error) {
	var w, h, cerr C.int
	C.mirage_screen_bounds(C.int(s.displayIndex), &w, &h, &cerr)
	if cerr != 0 {
		return 0, 0, translateError(int(cerr))
	}
	return int(w), int(h), nil
}

func (s *darwinSource) Close() error { return nil }

func (s *darwinSource) IsBGRA() bool { return true }

func toImage(result C.MirageCaptureResult) (*image.RGBA, error) {
	width := int(result.width)
	height := int(result.height)
	bytesPerRow := int(result.bytesPerRow)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	cData := C.GoBytes(result.data, C.int(bytesPerRow*height))
	for y := 0; y < height; y++ {
		srcStart := y * bytesPerRow
		dstStart := y * img.Stride
		copy(img.Pix[dstStart:dstStart+width*4], cData[srcStart:srcStart+width*4])
	}
	return img, nil
}

func translateError(code int) error {
	switch code {
	case 1:
		return fmt.Errorf("capture: failed to get shareable content")
	case 2:
		return ErrDisplayNotFound
	case 3:
		return ErrPermissionDenied
	case 4:
		return fmt.Errorf("capture: allocation failed")
	case 5:
		return fmt.Errorf("capture: failed to get image buffer")
	default:
		return fmt.Errorf("capture: unknown error %d", code)
	}
}

var _ BGRAProvider = (*darwinSource)(nil)
