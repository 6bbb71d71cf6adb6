package pipeline

import (
	"context"
	"log"
	"sync"
)

type Pipeline struct {
	sync.Mutex
	name     string
	bus      Bus
	elements []Element
}

func NewPipeline(name string) *Pipeline {
	bus := NewEventBus()
	return &Pipeline{
		name:     name,
		bus:      bus,
		elements: []Element{},
	}
}

func (p *Pipeline) AddElement(element Element) {
	p.Lock()
	defer p.Unlock()
	element.SetBus(p.bus)
	p.elements = append(p.elements, element)
}

func (p *Pipeline) AddElements(elements []Element) {
	p.Lock()
	defer p.Unlock()
	for _, element := range elements {
		element.SetBus(p.bus)
	}
	p.elements = append(p.elements, elements...)
}

func (p *Pipeline) Link(a, b Element) {
	// a.Out() -> b.In()
	go func() {
		for msg := range a.Out() {
			b.In() <- msg
		}
		close(b.In())
	}()
}

func (p *Pipeline) Bus() Bus {
	return p.bus
}

// Push feeds a message into the first element without blocking the caller.
// Audio capture callbacks must never stall, so a full input channel drops
// the message instead of waiting.
func (p *Pipeline) Push(msg *PipelineMessage) {
	if len(p.elements) == 0 {
		return
	}
	select {
	case p.elements[0].In() <- msg:
	default:
		log.Printf("[Pipeline] %s: input channel full, dropping message", p.name)
	}
}

// Pull reads a message from the last element.
func (p *Pipeline) Pull() *PipelineMessage {
	if len(p.elements) == 0 {
		return nil
	}
	return <-p.elements[len(p.elements)-1].Out()
}

func (p *Pipeline) Start(ctx context.Context) error {
	for _, e := range p.elements {
		if err := e.Start(ctx); err != nil {
			return err
		}
	}
	p.bus.Start(ctx)
	return nil
}

func (p *Pipeline) Stop() error {
	p.Lock()
	defer p.Unlock()
	// stop in reverse order so downstream elements drain first
	for i := len(p.elements) - 1; i >= 0; i-- {
		if err := p.elements[i].Stop(); err != nil {
			return err
		}
	}
	return nil
}
