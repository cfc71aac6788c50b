package browser

// bindingName is the window function the probe reports through
const bindingName = "__sessionrecEmit"

// uiMarker must match the normalizer's UIMarker
const uiMarker = "data-sessionrec-ui"

// probeFn is installed into every document of a recorded tab. It serialises
// interaction events and mutation batches and hands them to the Go side; the
// recording rules themselves live in the capture package.
const probeFn = `() => {
	if (window.__sessionrec) return true;
	const BINDING = '__sessionrecEmit';
	const UI = 'data-sessionrec-ui';

	const send = (msg) => {
		try {
			const fn = window[BINDING];
			if (typeof fn === 'function') fn(msg);
		} catch (e) {}
	};

	const ordinal = (el) => {
		if (!el || el.nodeType !== 1) return -1;
		return Array.prototype.indexOf.call(document.getElementsByTagName('*'), el);
	};

	const rect = (el) => {
		if (!el || !el.getBoundingClientRect) return { x: 0, y: 0, width: 0, height: 0 };
		const r = el.getBoundingClientRect();
		return { x: r.x, y: r.y, width: r.width, height: r.height };
	};

	const modifiers = (ev) => ({
		alt: !!ev.altKey, ctrl: !!ev.ctrlKey, meta: !!ev.metaKey, shift: !!ev.shiftKey
	});

	const snapshot = () => document.documentElement ? document.documentElement.outerHTML : '';

	const base = (ev, el) => {
		const msg = {
			type: ev.type,
			url: location.href,
			ordinal: ordinal(el),
			rect: rect(el),
			modifiers: modifiers(ev)
		};
		if (el && el.nodeType === 1) {
			msg.snapshot = snapshot();
			if (typeof el.type === 'string') msg.inputType = el.type;
			if ('value' in el && typeof el.value === 'string') msg.value = el.value;
			else if (el.isContentEditable) msg.value = el.textContent || '';
			if ('checked' in el) msg.checked = !!el.checked;
		}
		return msg;
	};

	const forward = (ev) => {
		try { send({ channel: 'event', event: base(ev, ev.target) }); } catch (e) {}
	};

	['click', 'dblclick', 'input', 'change', 'focusin', 'focusout'].forEach((type) => {
		document.addEventListener(type, forward, true);
	});

	document.addEventListener('submit', (ev) => {
		try {
			const form = ev.target;
			const msg = base(ev, form);
			msg.controls = Array.from(form.elements || []).map((c) => ({
				tag: c.tagName.toLowerCase(),
				type: c.type || '',
				name: c.name || '',
				id: c.id || '',
				class: typeof c.className === 'string' ? c.className : '',
				value: typeof c.value === 'string' ? c.value : '',
				checked: !!c.checked,
				disabled: !!c.disabled
			}));
			send({ channel: 'event', event: msg });
		} catch (e) {}
	}, true);

	document.addEventListener('keydown', (ev) => {
		try {
			// printable keys never produce records, skip the snapshot for them
			if (ev.key && ev.key.length === 1) {
				send({ channel: 'event', event: { type: ev.type, key: ev.key, ordinal: -1, url: location.href } });
				return;
			}
			const msg = base(ev, ev.target);
			msg.key = ev.key;
			send({ channel: 'event', event: msg });
		} catch (e) {}
	}, true);

	// mouseover bubbles from every descendant, forward entries only
	let lastHover = null;
	document.addEventListener('mouseover', (ev) => {
		if (ev.target === lastHover) return;
		lastHover = ev.target;
		forward(ev);
	}, true);

	window.addEventListener('scroll', () => {
		send({ channel: 'event', event: {
			type: 'scroll', url: location.href, ordinal: -1,
			scrollX: window.scrollX, scrollY: window.scrollY
		} });
	}, { capture: true, passive: true });

	const observe = () => {
		const root = document.documentElement;
		if (!root) return;
		new MutationObserver((records) => {
			const own = records.every((r) => {
				const n = r.target.nodeType === 1 ? r.target : r.target.parentElement;
				return n && n.closest && n.closest('[' + UI + ']');
			});
			if (!own) send({ channel: 'mutation' });
		}).observe(root, { childList: true, subtree: true, attributes: true, characterData: true });
	};

	const badge = () => {
		if (!document.body || document.querySelector('[' + UI + ']')) return;
		const el = document.createElement('div');
		el.setAttribute(UI, 'badge');
		el.style.cssText = 'position:fixed;top:8px;right:8px;z-index:2147483647;' +
			'padding:2px 8px;border-radius:10px;font:600 11px/16px system-ui,sans-serif;' +
			'color:#fff;background:#d93025;pointer-events:auto;opacity:.85';
		el.textContent = window.__sessionrecState || 'REC';
		document.body.appendChild(el);
	};

	window.__sessionrec = {
		setState: (state) => {
			window.__sessionrecState = state;
			const el = document.querySelector('[' + UI + ']');
			if (!el) return;
			el.textContent = state;
			el.style.background = state === 'REC' ? '#d93025' : '#5f6368';
		},
		remove: () => {
			const el = document.querySelector('[' + UI + ']');
			if (el) el.remove();
		}
	};

	if (document.readyState === 'loading') {
		document.addEventListener('DOMContentLoaded', () => { observe(); badge(); });
	} else {
		observe();
		badge();
	}
	return true;
}`

// viewportImagesFn tags incomplete images intersecting the viewport and
// returns their tokens
const viewportImagesFn = `() => {
	const out = [];
	const vw = window.innerWidth, vh = window.innerHeight;
	let n = 0;
	document.querySelectorAll('img').forEach((img) => {
		if (img.complete) return;
		const r = img.getBoundingClientRect();
		if (r.bottom < 0 || r.right < 0 || r.top > vh || r.left > vw) return;
		const token = 'i' + Date.now().toString(36) + (n++);
		img.setAttribute('data-sessionrec-wait', token);
		out.push(token);
	});
	return out;
}`

// imageLoadedFn resolves once the tagged image fires load or error
const imageLoadedFn = `(token) => new Promise((resolve) => {
	const img = document.querySelector('img[data-sessionrec-wait="' + token + '"]');
	if (!img) { resolve(true); return; }
	const done = () => { img.removeAttribute('data-sessionrec-wait'); resolve(true); };
	if (img.complete) { done(); return; }
	img.addEventListener('load', done, { once: true });
	img.addEventListener('error', done, { once: true });
})`

// clearImageMarkFn drops the wait marker of an image that was given up on
const clearImageMarkFn = `(token) => {
	const img = document.querySelector('img[data-sessionrec-wait="' + token + '"]');
	if (img) img.removeAttribute('data-sessionrec-wait');
}`

// tooltipFn returns the text of the first visible tooltip, or an empty string
const tooltipFn = `() => {
	for (const el of document.querySelectorAll('[role="tooltip"]')) {
		const s = getComputedStyle(el);
		if (s.display === 'none' || s.visibility === 'hidden' || s.opacity === '0') continue;
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) continue;
		return (el.textContent || '').trim();
	}
	return '';
}`

// metadataFn reports the page metadata stored with a session
const metadataFn = `() => ({
	title: document.title,
	width: window.innerWidth,
	height: window.innerHeight,
	userAgent: navigator.userAgent
})`

const setBadgeFn = `(state) => { if (window.__sessionrec) window.__sessionrec.setState(state); }`

const removeBadgeFn = `() => { if (window.__sessionrec) window.__sessionrec.remove(); }`
