package webapi

import (
	"context"
	"reflect"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultDocument is loaded when no markup is configured.
const DefaultDocument = "<!DOCTYPE html><html><head></head><body></body></html>"

// Viewport is the size reported for the root elements.
type Viewport struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// DOMChange represents a DOM modification
type DOMChange struct {
	Type     string // set_attribute, set_text, set_html, append, remove, ...
	Target   string // tag#id of the element
	Property string
	Value    any
}

// Document is a host DOM tree backed by x/net/html nodes.
type Document struct {
	root      *html.Node
	viewport  Viewport
	elements  map[*html.Node]*Element
	listeners map[*html.Node]map[string][]Callable
	values    map[*html.Node]string
	changes   []DOMChange
	report    func(error)
	now       func() float64
}

// NewDocument parses markup into a document.
func NewDocument(markup string, viewport Viewport) (*Document, error) {
	if markup == "" {
		markup = DefaultDocument
	}
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, Errorf(SyntaxErrorName, "failed to parse document: %v", err)
	}
	return &Document{
		root:      root,
		viewport:  viewport,
		elements:  make(map[*html.Node]*Element),
		listeners: make(map[*html.Node]map[string][]Callable),
		values:    make(map[*html.Node]string),
		report:    func(error) {},
		now:       func() float64 { return 0 },
	}, nil
}

// wrap returns the single Element for n so handles compare equal.
func (d *Document) wrap(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	if el, ok := d.elements[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n}
	d.elements[n] = el
	return el
}

func (d *Document) find(tag atom.Atom) *html.Node {
	var walk func(*html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.DataAtom == tag {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if m := walk(c); m != nil {
				return m
			}
		}
		return nil
	}
	return walk(d.root)
}

// DocumentElement returns the <html> element.
func (d *Document) DocumentElement() *Element {
	return d.wrap(d.find(atom.Html))
}

// Body returns the <body> element.
func (d *Document) Body() *Element {
	return d.wrap(d.find(atom.Body))
}

// Head returns the <head> element.
func (d *Document) Head() *Element {
	return d.wrap(d.find(atom.Head))
}

// CreateElement creates a detached element.
func (d *Document) CreateElement(tag string) (*Element, error) {
	if !validName(tag) {
		return nil, Errorf(InvalidCharacterErrorName,
			"Failed to execute 'createElement' on 'Document': The tag name provided ('%s') is not a valid name.", tag)
	}
	name := strings.ToLower(tag)
	n := &html.Node{Type: html.ElementNode, Data: name, DataAtom: atom.Lookup([]byte(name))}
	return d.wrap(n), nil
}

// QuerySelector returns the first matching element or nil.
func (d *Document) QuerySelector(selector string) (*Element, error) {
	return d.querySelector(d.root, selector)
}

func (d *Document) querySelector(scope *html.Node, selector string) (*Element, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, Errorf(SyntaxErrorName, "'%s' is not a valid selector", selector)
	}
	for c := scope.FirstChild; c != nil; c = c.NextSibling {
		if m := sel.MatchFirst(c); m != nil {
			return d.wrap(m), nil
		}
	}
	return nil, nil
}

// Changes returns the recorded modifications.
func (d *Document) Changes() []DOMChange {
	out := make([]DOMChange, len(d.changes))
	copy(out, d.changes)
	return out
}

// HTML renders the whole document.
func (d *Document) HTML() (string, error) {
	var b strings.Builder
	if err := html.Render(&b, d.root); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Property implements PropertyGetter.
func (d *Document) Property(name string) (any, bool) {
	switch name {
	case "body":
		return d.Body(), true
	case "head":
		return d.Head(), true
	case "documentElement":
		return d.DocumentElement(), true
	}
	return nil, false
}

// ConstructorName names the object for diagnostics.
func (d *Document) ConstructorName() string {
	return "HTMLDocument"
}

func (d *Document) record(el *Element, typ, prop string, value any) {
	d.changes = append(d.changes, DOMChange{Type: typ, Target: el.describe(), Property: prop, Value: value})
}

// Element is a DOM element.
type Element struct {
	doc  *Document
	node *html.Node
}

func (e *Element) sel() *goquery.Selection {
	return goquery.NewDocumentFromNode(e.node).Selection
}

func (e *Element) describe() string {
	if id, ok := e.GetAttribute("id"); ok && id != "" {
		return e.node.Data + "#" + id
	}
	return e.node.Data
}

// Node exposes the underlying html node.
func (e *Element) Node() *html.Node {
	return e.node
}

// TagName returns the upper-cased tag.
func (e *Element) TagName() string {
	return strings.ToUpper(e.node.Data)
}

// Is reports whether the element has the given tag.
func (e *Element) Is(tag string) bool {
	return strings.EqualFold(e.node.Data, tag)
}

// GetAttribute returns an attribute value.
func (e *Element) GetAttribute(name string) (string, bool) {
	return e.sel().Attr(strings.ToLower(name))
}

// SetAttribute sets an attribute.
func (e *Element) SetAttribute(name, value string) error {
	if !validName(name) {
		return Errorf(InvalidCharacterErrorName,
			"Failed to execute 'setAttribute' on 'Element': '%s' is not a valid attribute name.", name)
	}
	e.sel().SetAttr(strings.ToLower(name), value)
	e.doc.record(e, "set_attribute", strings.ToLower(name), value)
	return nil
}

// RemoveAttribute removes an attribute.
func (e *Element) RemoveAttribute(name string) {
	e.sel().RemoveAttr(strings.ToLower(name))
	e.doc.record(e, "remove_attribute", strings.ToLower(name), nil)
}

func (e *Element) setFlag(name string, on bool) {
	_, has := e.GetAttribute(name)
	switch {
	case on && !has:
		e.sel().SetAttr(name, "")
	case !on && has:
		e.sel().RemoveAttr(name)
	default:
		return
	}
	e.doc.record(e, "set_"+name, name, on)
}

// ClassName returns the class attribute.
func (e *Element) ClassName() string {
	v, _ := e.GetAttribute("class")
	return v
}

// SetClassName replaces the class attribute.
func (e *Element) SetClassName(v string) {
	e.sel().SetAttr("class", v)
	e.doc.record(e, "set_class", "class", v)
}

// InnerHTML serializes the children.
func (e *Element) InnerHTML() (string, error) {
	return e.sel().Html()
}

// SetInnerHTML replaces the children with parsed markup.
func (e *Element) SetInnerHTML(markup string) {
	e.sel().SetHtml(markup)
	e.doc.record(e, "set_html", "innerHTML", markup)
}

// Text returns the text content.
func (e *Element) Text() string {
	return e.sel().Text()
}

// SetInnerText replaces the children with a text node.
func (e *Element) SetInnerText(text string) {
	e.sel().SetText(text)
	e.doc.record(e, "set_text", "innerText", text)
}

// Hidden reports the hidden attribute.
func (e *Element) Hidden() bool {
	_, ok := e.GetAttribute("hidden")
	return ok
}

// SetHidden toggles the hidden attribute.
func (e *Element) SetHidden(v bool) {
	e.setFlag("hidden", v)
}

// Disabled reports the disabled attribute.
func (e *Element) Disabled() bool {
	_, ok := e.GetAttribute("disabled")
	return ok
}

// SetDisabled toggles the disabled attribute.
func (e *Element) SetDisabled(v bool) {
	e.setFlag("disabled", v)
}

// Value returns the form control value.
func (e *Element) Value() string {
	if v, ok := e.doc.values[e.node]; ok {
		return v
	}
	if e.node.DataAtom == atom.Textarea {
		return e.Text()
	}
	v, _ := e.GetAttribute("value")
	return v
}

// SetValue sets the form control value without touching the markup.
func (e *Element) SetValue(v string) {
	e.doc.values[e.node] = v
	e.doc.record(e, "set_value", "value", v)
}

// Layout is not modelled: an element fills its parent unless it carries
// explicit width/height attributes, and the root elements fill the viewport.
func (e *Element) clientSize(attr string, viewport int) int {
	if e.Hidden() {
		return 0
	}
	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		el := e.doc.wrap(n)
		if el.Hidden() {
			return 0
		}
		if v, ok := el.GetAttribute(attr); ok {
			if px, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "px")); err == nil {
				return px
			}
		}
		if n.DataAtom == atom.Html || n.DataAtom == atom.Body {
			return viewport
		}
	}
	return 0
}

// ClientWidth returns the laid-out width.
func (e *Element) ClientWidth() int {
	return e.clientSize("width", e.doc.viewport.Width)
}

// ClientHeight returns the laid-out height.
func (e *Element) ClientHeight() int {
	return e.clientSize("height", e.doc.viewport.Height)
}

// Parent returns the parent element or nil.
func (e *Element) Parent() *Element {
	if e.node.Parent == nil || e.node.Parent.Type != html.ElementNode {
		return nil
	}
	return e.doc.wrap(e.node.Parent)
}

// Connected reports whether the element is in the document tree.
func (e *Element) Connected() bool {
	for n := e.node; n != nil; n = n.Parent {
		if n == e.doc.root {
			return true
		}
	}
	return false
}

// AppendChild moves child to the end of e's children.
func (e *Element) AppendChild(child *Element) (*Element, error) {
	for n := e.node; n != nil; n = n.Parent {
		if n == child.node {
			return nil, Errorf(HierarchyRequestErrorName,
				"Failed to execute 'appendChild' on 'Node': The new child element contains the parent.")
		}
	}
	if child.node.Parent != nil {
		child.node.Parent.RemoveChild(child.node)
	}
	e.node.AppendChild(child.node)
	e.doc.record(e, "append", child.describe(), nil)
	return child, nil
}

// Remove detaches the element from its parent.
func (e *Element) Remove() {
	if e.node.Parent == nil {
		return
	}
	e.doc.record(e, "remove", "", nil)
	e.node.Parent.RemoveChild(e.node)
}

// QuerySelector returns the first matching descendant or nil.
func (e *Element) QuerySelector(selector string) (*Element, error) {
	return e.doc.querySelector(e.node, selector)
}

// AddEventListener registers cb for typ. Duplicate registrations are ignored.
func (e *Element) AddEventListener(typ string, cb Callable) {
	byType := e.doc.listeners[e.node]
	if byType == nil {
		byType = make(map[string][]Callable)
		e.doc.listeners[e.node] = byType
	}
	for _, existing := range byType[typ] {
		if sameCallable(existing, cb) {
			return
		}
	}
	byType[typ] = append(byType[typ], cb)
}

// RemoveEventListener unregisters cb for typ.
func (e *Element) RemoveEventListener(typ string, cb Callable) {
	list := e.doc.listeners[e.node][typ]
	for i, existing := range list {
		if sameCallable(existing, cb) {
			e.doc.listeners[e.node][typ] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of listeners for typ.
func (e *Element) ListenerCount(typ string) int {
	return len(e.doc.listeners[e.node][typ])
}

// Click simulates a user click. Disabled controls ignore it.
func (e *Element) Click(ctx context.Context) {
	if e.Disabled() {
		switch e.node.DataAtom {
		case atom.Button, atom.Input, atom.Select, atom.Textarea:
			return
		}
	}
	e.DispatchEvent(ctx, NewEvent("click", true))
}

// DispatchEvent delivers ev to e and, when it bubbles, to its ancestors.
// Listener errors are reported and do not stop delivery.
func (e *Element) DispatchEvent(ctx context.Context, ev *Event) bool {
	ev.Target = e
	ev.TimeStamp = e.doc.now()
	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		ev.CurrentTarget = e.doc.wrap(n)
		listeners := append([]Callable(nil), e.doc.listeners[n][ev.Type]...)
		for _, cb := range listeners {
			if _, err := cb.Call(ctx, ev); err != nil {
				e.doc.report(err)
			}
		}
		if !ev.Bubbles || ev.stopped {
			break
		}
	}
	ev.CurrentTarget = nil
	return !ev.defaultPrevented
}

// Property implements PropertyGetter.
func (e *Element) Property(name string) (any, bool) {
	switch name {
	case "tagName":
		return e.TagName(), true
	case "id":
		v, _ := e.GetAttribute("id")
		return v, true
	case "className":
		return e.ClassName(), true
	case "value":
		return e.Value(), true
	case "hidden":
		return e.Hidden(), true
	case "disabled":
		return e.Disabled(), true
	case "clientWidth":
		return float64(e.ClientWidth()), true
	case "clientHeight":
		return float64(e.ClientHeight()), true
	case "textContent", "innerText":
		return e.Text(), true
	case "parentElement":
		if p := e.Parent(); p != nil {
			return p, true
		}
		return nil, true
	}
	return nil, false
}

var elementClasses = map[atom.Atom]string{
	atom.Div:      "HTMLDivElement",
	atom.Button:   "HTMLButtonElement",
	atom.Textarea: "HTMLTextAreaElement",
	atom.Input:    "HTMLInputElement",
	atom.Canvas:   "HTMLCanvasElement",
	atom.Span:     "HTMLSpanElement",
	atom.Body:     "HTMLBodyElement",
	atom.Html:     "HTMLHtmlElement",
	atom.P:        "HTMLParagraphElement",
}

// ConstructorName names the element class.
func (e *Element) ConstructorName() string {
	if name, ok := elementClasses[e.node.DataAtom]; ok {
		return name
	}
	return "HTMLElement"
}

// Event is a dispatched DOM event.
type Event struct {
	Type          string
	Bubbles       bool
	Target        *Element
	CurrentTarget *Element
	TimeStamp     float64

	defaultPrevented bool
	stopped          bool
}

// NewEvent creates an event.
func NewEvent(typ string, bubbles bool) *Event {
	return &Event{Type: typ, Bubbles: bubbles}
}

// PreventDefault marks the event as canceled.
func (ev *Event) PreventDefault() {
	ev.defaultPrevented = true
}

// StopPropagation stops bubbling after the current element.
func (ev *Event) StopPropagation() {
	ev.stopped = true
}

// DefaultPrevented reports whether PreventDefault was called.
func (ev *Event) DefaultPrevented() bool {
	return ev.defaultPrevented
}

// Property implements PropertyGetter.
func (ev *Event) Property(name string) (any, bool) {
	switch name {
	case "type":
		return ev.Type, true
	case "bubbles":
		return ev.Bubbles, true
	case "target":
		return ev.Target, true
	case "currentTarget":
		return ev.CurrentTarget, true
	case "timeStamp":
		return ev.TimeStamp, true
	case "defaultPrevented":
		return ev.defaultPrevented, true
	}
	return nil, false
}

// ConstructorName names the object for diagnostics.
func (ev *Event) ConstructorName() string {
	if ev.Type == "click" {
		return "MouseEvent"
	}
	return "Event"
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.' || r == ':'):
		default:
			return false
		}
	}
	return true
}

// sameCallable compares callables by identity. Func values are compared by
// code pointer since Go funcs are not comparable.
func sameCallable(a, b Callable) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	if va.Comparable() {
		return va.Equal(vb)
	}
	return false
}
