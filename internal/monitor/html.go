package monitor

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Structure Camera Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: sans-serif; background: #111; color: #eee; margin: 0; }
        .header { display: flex; justify-content: space-between; align-items: center; padding: 12px 20px; background: #222; }
        .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 16px; padding: 16px; }
        .panel { background: #1b1b1b; border-radius: 8px; padding: 12px; }
        .panel img { width: 100%; height: auto; display: block; background: #000; }
        .badge { padding: 4px 10px; border-radius: 12px; background: #444; font-size: 12px; }
        .badge.streaming { background: #2e7d32; }
        .badge.error { background: #c62828; }
        pre { font-size: 12px; white-space: pre-wrap; margin: 0; }
        button { margin: 4px 4px 4px 0; }
        label { display: inline-block; width: 140px; }
    </style>
</head>
<body>
    <div class="header">
        <div>Structure Camera Monitor</div>
        <span class="badge" id="state-badge">waiting...</span>
    </div>
    <div class="grid">
        <div class="panel">
            <h3>Visible</h3>
            <img src="/stream" alt="visible camera">
        </div>
        <div class="panel">
            <h3>Depth</h3>
            <img src="/stream/depth" alt="depth preview">
        </div>
        <div class="panel">
            <h3>Control</h3>
            <button onclick="post('/api/camera/start')">Start</button>
            <button onclick="post('/api/camera/stop')">Stop</button>
            <button onclick="post('/api/recording/start', {})">Record</button>
            <button onclick="post('/api/recording/stop')">Stop recording</button>
            <button onclick="connectTelemetry()">WebRTC telemetry</button>
            <div>
                <p><label>Visible exposure</label><input id="visible_exposure" type="number" step="0.001"></p>
                <p><label>Visible gain</label><input id="visible_gain" type="number" step="0.5"></p>
                <p><label>Infrared exposure</label><input id="infrared_exposure" type="number" step="0.001"></p>
                <p><label>Infrared gain</label><input id="infrared_gain" type="number" step="0.5"></p>
                <button onclick="applyExposure()">Apply exposure</button>
            </div>
        </div>
        <div class="panel">
            <h3>IMU</h3>
            <pre id="imu">no samples</pre>
            <h3>Telemetry</h3>
            <pre id="telemetry">not connected</pre>
        </div>
        <div class="panel" style="grid-column: span 2;">
            <h3>Status</h3>
            <pre id="status"></pre>
        </div>
    </div>
    <script>
        async function post(url, body) {
            const resp = await fetch(url, {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: body === undefined ? undefined : JSON.stringify(body),
            });
            const data = await resp.json();
            if (!resp.ok) alert(data.error || resp.statusText);
            return data;
        }

        async function loadExposure() {
            const data = await (await fetch('/api/exposure')).json();
            for (const key of Object.keys(data)) {
                const el = document.getElementById(key);
                if (el) el.value = data[key];
            }
        }

        function applyExposure() {
            const body = {};
            for (const key of ['visible_exposure', 'visible_gain', 'infrared_exposure', 'infrared_gain']) {
                const v = document.getElementById(key).value;
                if (v !== '') body[key] = parseFloat(v);
            }
            post('/api/exposure', body);
        }

        const status = new EventSource('/api/status/stream');
        status.onmessage = (e) => {
            const s = JSON.parse(e.data);
            const badge = document.getElementById('state-badge');
            badge.textContent = s.error ? s.state + ' (' + s.error.event + ')' : s.state;
            badge.className = 'badge ' + (s.error ? 'error' : s.state);
            document.getElementById('status').textContent = JSON.stringify(s, null, 2);
        };

        const imu = new EventSource('/api/imu/stream');
        imu.onmessage = (e) => {
            document.getElementById('imu').textContent = JSON.stringify(JSON.parse(e.data), null, 2);
        };

        async function connectTelemetry() {
            const pc = new RTCPeerConnection({iceServers: [{urls: 'stun:stun.l.google.com:19302'}]});
            const channel = pc.createDataChannel('telemetry');
            channel.onmessage = (e) => {
                document.getElementById('telemetry').textContent = JSON.stringify(JSON.parse(e.data), null, 2);
            };
            await pc.setLocalDescription(await pc.createOffer());
            await new Promise((resolve) => {
                if (pc.iceGatheringState === 'complete') return resolve();
                pc.onicegatheringstatechange = () => pc.iceGatheringState === 'complete' && resolve();
            });
            const answer = await post('/api/webrtc/offer', pc.localDescription);
            if (answer.sdp) await pc.setRemoteDescription(answer);
        }

        loadExposure();
    </script>
</body>
</html>
`
