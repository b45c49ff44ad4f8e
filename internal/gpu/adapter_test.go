// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"bytes"
	"errors"
	"testing"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/autoexposure/gpucore"
)

// fakeQueue completes submissions only when told to and rejects direct
// writes the way device-local Vulkan buffers do.
type fakeQueue struct {
	noop.Queue
	submits   uint64
	completed uint64
	writes    int
}

func (q *fakeQueue) Submit(_ []hal.CommandBuffer) (uint64, error) {
	q.submits++
	return q.submits, nil
}

func (q *fakeQueue) PollCompleted() uint64 { return q.completed }

func (q *fakeQueue) WriteBuffer(_ hal.Buffer, _ uint64, _ []byte) error {
	q.writes++
	return errors.New("buffer is not mapped")
}

type event struct {
	kind string
	dst  hal.Buffer
}

type fakeBindGroup struct {
	noop.Resource
	n int
}

// fakeDevice records encoded commands and destroyed resources. Copies are
// carried out at encode time so data can be read back.
type fakeDevice struct {
	noop.Device
	queue       *fakeQueue
	events      []event
	uploadUsage []gputypes.BufferUsage
	uploads     []hal.Buffer
	groups      int
	destroyed   map[any]int
}

func (d *fakeDevice) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	b, err := d.Device.CreateBuffer(desc)
	if err == nil && desc.Label == "autoexposure_upload" {
		d.uploads = append(d.uploads, b)
		d.uploadUsage = append(d.uploadUsage, desc.Usage)
	}
	return b, err
}

func (d *fakeDevice) DestroyBuffer(b hal.Buffer) { d.destroyed[b]++ }

func (d *fakeDevice) CreateBindGroup(_ *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	d.groups++
	return &fakeBindGroup{n: d.groups}, nil
}

func (d *fakeDevice) DestroyBindGroup(g hal.BindGroup) { d.destroyed[g]++ }

func (d *fakeDevice) CreateCommandEncoder(_ *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	return &fakeEncoder{dev: d}, nil
}

func (d *fakeDevice) WaitIdle() error {
	d.queue.completed = d.queue.submits
	return nil
}

type fakeEncoder struct {
	noop.CommandEncoder
	dev *fakeDevice
}

func (e *fakeEncoder) CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	e.dev.events = append(e.dev.events, event{kind: "copy", dst: dst})
	for _, r := range regions {
		from, err := e.dev.MapBuffer(src, r.SrcOffset, r.Size)
		if err != nil {
			continue
		}
		to, err := e.dev.MapBuffer(dst, r.DstOffset, r.Size)
		if err != nil {
			continue
		}
		copy(unsafe.Slice((*byte)(to.Ptr), r.Size), unsafe.Slice((*byte)(from.Ptr), r.Size))
	}
}

func (e *fakeEncoder) BeginComputePass(_ *hal.ComputePassDescriptor) hal.ComputePassEncoder {
	return &fakePass{dev: e.dev}
}

type fakePass struct {
	noop.ComputePassEncoder
	dev *fakeDevice
}

func (p *fakePass) Dispatch(_, _, _ uint32) {
	p.dev.events = append(p.dev.events, event{kind: "dispatch"})
}

func newFakeAdapter(t *testing.T) (*Adapter, *fakeDevice) {
	t.Helper()
	q := &fakeQueue{}
	d := &fakeDevice{queue: q, destroyed: make(map[any]int)}
	a, err := NewAdapter(d, q, nil)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	t.Cleanup(a.Close)
	return a, d
}

func storageBuffer(t *testing.T, a *Adapter, size int) gpucore.BufferID {
	t.Helper()
	id, err := a.CreateBuffer(size, gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst|gpucore.BufferUsageCopySrc)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	return id
}

func bindStorage(t *testing.T, a *Adapter, buf gpucore.BufferID) gpucore.BindGroupID {
	t.Helper()
	layout, err := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Entries: []gpucore.BindGroupLayoutEntry{{Binding: 0, Type: gpucore.BindingTypeStorageBuffer}},
	})
	if err != nil {
		t.Fatalf("CreateBindGroupLayout: %v", err)
	}
	group, err := a.CreateBindGroup(layout, []gpucore.BindGroupEntry{{Binding: 0, Buffer: buf}})
	if err != nil {
		t.Fatalf("CreateBindGroup: %v", err)
	}
	return group
}

func dispatch(a *Adapter, group gpucore.BindGroupID) {
	p := a.BeginComputePass("test")
	if group != gpucore.InvalidID {
		p.SetBindGroup(0, group, nil)
	}
	p.Dispatch(1, 1, 1)
	p.End()
}

func TestWriteBufferStagesCopies(t *testing.T) {
	a, d := newFakeAdapter(t)
	id := storageBuffer(t, a, 16)
	dst := a.buffers[id].hal

	a.WriteBuffer(id, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	dispatch(a, gpucore.InvalidID)
	a.WriteBuffer(id, 4, []byte{0xa, 0xb, 0xc, 0xd})
	if err := a.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if d.queue.writes != 0 {
		t.Errorf("queue.WriteBuffer called %d times; writes must go through upload copies", d.queue.writes)
	}
	want := []event{{"copy", dst}, {"dispatch", nil}, {"copy", dst}}
	if len(d.events) != len(want) {
		t.Fatalf("encoded %v, want %v", d.events, want)
	}
	for i := range want {
		if d.events[i] != want[i] {
			t.Errorf("command %d = %+v, want %+v", i, d.events[i], want[i])
		}
	}
	for i, u := range d.uploadUsage {
		if u != gputypes.BufferUsageMapWrite|gputypes.BufferUsageCopySrc {
			t.Errorf("upload %d usage = %v, want MapWrite|CopySrc", i, u)
		}
	}

	got, err := a.ReadBuffer(id, 0, 16)
	if err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if wantData := []byte{1, 2, 3, 4, 0xa, 0xb, 0xc, 0xd, 9, 10, 11, 12, 13, 14, 15, 16}; !bytes.Equal(got, wantData) {
		t.Errorf("ReadBuffer = %v, want %v", got, wantData)
	}
	for i, up := range d.uploads {
		if d.destroyed[up] != 1 {
			t.Errorf("upload %d destroyed %d times after completion, want 1", i, d.destroyed[up])
		}
	}
}

func TestReadBufferFlushesPendingWrites(t *testing.T) {
	a, _ := newFakeAdapter(t)
	id := storageBuffer(t, a, 8)

	a.WriteBuffer(id, 0, []byte{9, 8, 7, 6, 5, 4, 3, 2})
	got, err := a.ReadBuffer(id, 0, 8)
	if err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if !bytes.Equal(got, []byte{9, 8, 7, 6, 5, 4, 3, 2}) {
		t.Errorf("ReadBuffer = %v; write recorded before the read was lost", got)
	}
}

func TestWriteBufferRejects(t *testing.T) {
	tests := []struct {
		name   string
		offset uint64
		data   []byte
	}{
		{"past end", 8, make([]byte, 16)},
		{"unaligned offset", 2, make([]byte, 4)},
		{"unaligned size", 0, make([]byte, 3)},
		{"empty", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, d := newFakeAdapter(t)
			id := storageBuffer(t, a, 16)
			a.WriteBuffer(id, tt.offset, tt.data)
			if len(a.pending) != 0 || len(d.uploads) != 0 {
				t.Errorf("write recorded: %d ops, %d uploads", len(a.pending), len(d.uploads))
			}
		})
	}
}

func TestDestroyWaitsForSubmission(t *testing.T) {
	a, d := newFakeAdapter(t)
	id := storageBuffer(t, a, 16)
	buf := a.buffers[id].hal
	group := bindStorage(t, a, id)
	bg := a.bindGroups[group]

	dispatch(a, group)
	if err := a.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	a.DestroyBindGroup(group)
	a.DestroyBuffer(id)
	if d.destroyed[bg] != 0 || d.destroyed[buf] != 0 {
		t.Fatal("resources destroyed while their submission is in flight")
	}
	if _, ok := a.buffers[id]; ok {
		t.Error("destroyed buffer ID still resolves")
	}

	// A later submission must not release them early.
	dispatch(a, gpucore.InvalidID)
	if err := a.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if d.destroyed[bg] != 0 || d.destroyed[buf] != 0 {
		t.Fatal("resources destroyed before completion")
	}

	d.queue.completed = 1
	if err := a.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if d.destroyed[bg] != 1 || d.destroyed[buf] != 1 {
		t.Errorf("destroyed bind group %d, buffer %d times after completion; want 1 each",
			d.destroyed[bg], d.destroyed[buf])
	}
}

func TestDestroyWaitsForRecordedPass(t *testing.T) {
	a, d := newFakeAdapter(t)
	id := storageBuffer(t, a, 16)
	buf := a.buffers[id].hal
	group := bindStorage(t, a, id)

	dispatch(a, group)
	a.DestroyBuffer(id)
	if d.destroyed[buf] != 0 {
		t.Fatal("buffer destroyed while a recorded pass still binds it")
	}
	if err := a.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if d.destroyed[buf] != 0 {
		t.Fatal("buffer destroyed before its submission completed")
	}
	a.WaitIdle()
	if d.destroyed[buf] != 1 {
		t.Errorf("buffer destroyed %d times after WaitIdle, want 1", d.destroyed[buf])
	}
}

func TestDestroyIdleIsImmediate(t *testing.T) {
	a, d := newFakeAdapter(t)
	id := storageBuffer(t, a, 16)
	buf := a.buffers[id].hal
	a.DestroyBuffer(id)
	if d.destroyed[buf] != 1 {
		t.Errorf("idle buffer destroyed %d times, want 1", d.destroyed[buf])
	}
}

func TestCloseReleasesDeferred(t *testing.T) {
	q := &fakeQueue{}
	d := &fakeDevice{queue: q, destroyed: make(map[any]int)}
	a, err := NewAdapter(d, q, nil)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	id := storageBuffer(t, a, 16)
	buf := a.buffers[id].hal
	a.WriteBuffer(id, 0, make([]byte, 16))
	dispatch(a, gpucore.InvalidID)
	if err := a.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	a.DestroyBuffer(id)
	a.WriteBuffer(storageBuffer(t, a, 4), 0, make([]byte, 4))

	a.Close()
	if d.destroyed[buf] != 1 {
		t.Errorf("deferred buffer destroyed %d times on Close, want 1", d.destroyed[buf])
	}
	for i, up := range d.uploads {
		if d.destroyed[up] != 1 {
			t.Errorf("upload %d destroyed %d times on Close, want 1", i, d.destroyed[up])
		}
	}
	if err := a.Submit(); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
}
