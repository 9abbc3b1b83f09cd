package fake

import (
	"github.com/pkg/errors"

	"essaim.dev/depthsense/sensor"
)

// StageDepth sets the depth samples produced from the next frame on.
func (d *Driver) StageDepth(depth []uint16) error {
	return stage(d, sensor.NodeDepth, &d.stagedDepth, depth, 1)
}

// StageImage sets the RGB24 samples produced from the next frame on.
func (d *Driver) StageImage(rgb []uint8) error {
	return stage(d, sensor.NodeImage, &d.stagedImage, rgb, 3)
}

// StageIR sets the infrared samples produced from the next frame on.
func (d *Driver) StageIR(ir []uint16) error {
	return stage(d, sensor.NodeIR, &d.stagedIR, ir, 1)
}

// StageScene sets the scene labels produced from the next frame on.
func (d *Driver) StageScene(labels []uint16) error {
	return stage(d, sensor.NodeScene, &d.stagedScene, labels, 1)
}

func stage[T uint8 | uint16](d *Driver, kind sensor.NodeKind, dst *[]T, src []T, channels int) error {
	res := d.resolution(kind)
	if res == nil {
		return errors.Wrapf(sensor.ErrUnsupported, "no %s node on device", kind)
	}
	if want := res.Width * res.Height * channels; len(src) != want {
		return errors.Errorf("staged %s frame has %d samples, want %d", kind, len(src), want)
	}
	*dst = append((*dst)[:0], src...)
	return nil
}

func (d *Driver) render() {
	if d.enabled[sensor.NodeDepth] {
		produce(d, d.depth, d.stagedDepth, d.cfg.Depth, 1, d.syntheticDepth)
		d.nodeFrame[sensor.NodeDepth] = d.frameID
	}
	if d.enabled[sensor.NodeScene] {
		produce(d, d.scene, d.stagedScene, d.cfg.Depth, 1, d.syntheticScene)
		d.nodeFrame[sensor.NodeScene] = d.frameID
	}
	if d.enabled[sensor.NodeImage] {
		produce(d, d.image, d.stagedImage, d.cfg.Image, 3, d.syntheticImage)
		d.nodeFrame[sensor.NodeImage] = d.frameID
	}
	if d.enabled[sensor.NodeIR] {
		produce(d, d.ir, d.stagedIR, d.cfg.IR, 1, d.syntheticIR)
		d.nodeFrame[sensor.NodeIR] = d.frameID
	}
	if d.enabled[sensor.NodeUser] {
		d.nodeFrame[sensor.NodeUser] = d.frameID
	}
}

// produce fills dst from the staged frame, or from the synthetic scene, mirrored when
// mirroring is on.
func produce[T uint8 | uint16](d *Driver, dst, staged []T, res *Resolution, channels int, synth func(px []T, x, y int)) {
	w := res.Width
	for y, rh := 0, res.Height; y < rh; y++ {
		for x := 0; x < w; x++ {
			sx := x
			if d.mirror {
				sx = w - 1 - x
			}
			di := (y*w + x) * channels

			switch {
			case staged != nil:
				si := (y*w + sx) * channels
				copy(dst[di:di+channels], staged[si:si+channels])
			case d.cfg.Synthetic:
				synth(dst[di:di+channels], sx, y)
			}
		}
	}
}

// userAt returns the scripted user standing at pixel (x, y) of a w*h frame. Users stand in
// one of four columns picked from their id.
func (d *Driver) userAt(x, y, w, h int) *simUser {
	if y < h/4 {
		return nil
	}
	for _, u := range d.users {
		slot := int(u.id-1) % 4
		x0 := slot*w/4 + w/16
		if x >= x0 && x < x0+w/8 {
			return u
		}
	}
	return nil
}

func (d *Driver) syntheticDepth(px []uint16, x, y int) {
	res := d.cfg.Depth
	if u := d.userAt(x, y, res.Width, res.Height); u != nil {
		px[0] = u.distance
		return
	}
	px[0] = d.cfg.BackgroundDistance
}

func (d *Driver) syntheticScene(px []uint16, x, y int) {
	res := d.cfg.Depth
	if u := d.userAt(x, y, res.Width, res.Height); u != nil {
		px[0] = uint16(u.id)
		return
	}
	px[0] = 0
}

func (d *Driver) syntheticImage(px []uint8, x, y int) {
	res := d.cfg.Image
	if u := d.userAt(x, y, res.Width, res.Height); u != nil {
		px[0], px[1], px[2] = 200, uint8(40*u.id), 80
		return
	}
	g := uint8(y * 255 / res.Height)
	px[0], px[1], px[2] = g, g, g
}

func (d *Driver) syntheticIR(px []uint16, x, y int) {
	res := d.cfg.IR
	if d.userAt(x, y, res.Width, res.Height) != nil {
		px[0] = 900
		return
	}
	px[0] = 300
}
