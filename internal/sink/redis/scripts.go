package redis

const (
	// appendEventScript appends an event to the stream and, when ttl is
	// positive, bumps the per-day event counter in one round trip
	appendEventScript = `
local stream_key = KEYS[1]     -- beacon:events
local counts_key = KEYS[2]     -- beacon:events:counts:{date}

local max_len = ARGV[1]
local page = ARGV[2]
local measurement_id = ARGV[3]
local event = ARGV[4]
local time = ARGV[5]
local params = ARGV[6]
local ttl = tonumber(ARGV[7])

local id = redis.call('XADD', stream_key, 'MAXLEN', max_len, '*',
  'page', page,
  'measurement_id', measurement_id,
  'event', event,
  'time', time,
  'params', params
)

if ttl > 0 then
  redis.call('HINCRBY', counts_key, event, 1)
  redis.call('EXPIRE', counts_key, ttl)
end

return id
`
)
